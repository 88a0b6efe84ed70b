package services

import (
	"projectpilot/internal/models"
	"sort"
	"strings"
	"time"
)

// Backlog types in display order; unknown types follow alphabetically
var backlogTypeOrder = []string{"epic", "story", "task", "bug"}

// Task statuses in display order; unknown statuses follow alphabetically
var taskStatusOrder = []string{"todo", "in_progress", "review", "done"}

// PartitionBacklog groups items by type, keeping each group's input order
func PartitionBacklog(items []models.BacklogItem) []BacklogGroup {
	byType := make(map[string][]models.BacklogItem)
	for _, item := range items {
		t := strings.ToLower(strings.TrimSpace(item.Type))
		if t == "" {
			t = "other"
		}
		byType[t] = append(byType[t], item)
	}
	return orderedGroups(byType)
}

func orderedGroups(byType map[string][]models.BacklogItem) []BacklogGroup {
	groups := make([]BacklogGroup, 0, len(byType))
	for _, t := range backlogTypeOrder {
		if items, ok := byType[t]; ok {
			groups = append(groups, BacklogGroup{Type: t, Items: items})
		}
	}

	var rest []string
	for t := range byType {
		if !contains(backlogTypeOrder, t) {
			rest = append(rest, t)
		}
	}
	sort.Strings(rest)
	for _, t := range rest {
		groups = append(groups, BacklogGroup{Type: t, Items: byType[t]})
	}
	return groups
}

// TaskStatusBreakdown counts tasks per status
func TaskStatusBreakdown(tasks []models.Task) []StatusCount {
	counts := make(map[string]int)
	for _, t := range tasks {
		status := strings.ToLower(strings.TrimSpace(t.Status))
		if status == "" {
			status = "unknown"
		}
		counts[status]++
	}

	out := make([]StatusCount, 0, len(counts))
	for _, status := range taskStatusOrder {
		if n, ok := counts[status]; ok {
			out = append(out, StatusCount{Status: status, Count: n})
		}
	}
	var rest []string
	for status := range counts {
		if !contains(taskStatusOrder, status) {
			rest = append(rest, status)
		}
	}
	sort.Strings(rest)
	for _, status := range rest {
		out = append(out, StatusCount{Status: status, Count: counts[status]})
	}
	return out
}

// FindActiveSprint returns the sprint marked active, or failing that the
// sprint whose date range contains now. Returns nil when neither exists.
func FindActiveSprint(sprints []models.Sprint, now time.Time) *models.Sprint {
	for i := range sprints {
		if strings.EqualFold(sprints[i].Status, models.SprintStatusActive) {
			s := sprints[i]
			return &s
		}
	}
	for i := range sprints {
		s := sprints[i]
		if s.StartDate.IsZero() || s.EndDate.IsZero() || strings.EqualFold(s.Status, models.SprintStatusCompleted) {
			continue
		}
		if !now.Before(s.StartDate) && !now.After(s.EndDate) {
			return &s
		}
	}
	return nil
}

// TasksForSprint returns the tasks assigned to sprintID
func TasksForSprint(tasks []models.Task, sprintID string) []models.Task {
	var out []models.Task
	for _, t := range tasks {
		if t.SprintID == sprintID {
			out = append(out, t)
		}
	}
	return out
}

// RoleNameIndex maps role id to role name
func RoleNameIndex(roles []models.ProjectRole) map[string]string {
	index := make(map[string]string, len(roles))
	for _, r := range roles {
		index[r.ID] = r.Name
	}
	return index
}

// BuildRolePermissions resolves each role's permission keys to descriptions.
// Keys with no known description are shown as-is.
func BuildRolePermissions(roles []models.ProjectRole, permissions []models.Permission) []RolePermissions {
	descriptions := make(map[string]string, len(permissions))
	for _, p := range permissions {
		descriptions[p.Key] = p.Description
	}

	out := make([]RolePermissions, 0, len(roles))
	for _, role := range roles {
		rp := RolePermissions{Role: role.Name, Permissions: make([]string, 0, len(role.Permissions))}
		for _, key := range role.Permissions {
			if desc := descriptions[key]; desc != "" {
				rp.Permissions = append(rp.Permissions, desc)
			} else {
				rp.Permissions = append(rp.Permissions, key)
			}
		}
		out = append(out, rp)
	}
	return out
}

// CompletionStats derives completion figures from backlog items
func CompletionStats(items []models.BacklogItem) (done, total int) {
	for _, item := range items {
		total++
		if IsDoneStatus(item.Status) {
			done++
		}
	}
	return done, total
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
