package services

import (
	"projectpilot/internal/models"
	"testing"
	"time"
)

func TestPartitionBacklog(t *testing.T) {
	items := []models.BacklogItem{
		{ID: "1", Type: "bug"},
		{ID: "2", Type: "Story"},
		{ID: "3", Type: "spike"},
		{ID: "4", Type: "epic"},
		{ID: "5", Type: "story"},
		{ID: "6", Type: ""},
		{ID: "7", Type: "chore"},
	}

	groups := PartitionBacklog(items)

	wantTypes := []string{"epic", "story", "bug", "chore", "other", "spike"}
	if len(groups) != len(wantTypes) {
		t.Fatalf("Expected %d groups, got %d", len(wantTypes), len(groups))
	}
	for i, want := range wantTypes {
		if groups[i].Type != want {
			t.Errorf("Expected group %d to be %s, got %s", i, want, groups[i].Type)
		}
	}

	stories := groups[1].Items
	if len(stories) != 2 || stories[0].ID != "2" || stories[1].ID != "5" {
		t.Errorf("Expected stories in input order, got %+v", stories)
	}

	total := 0
	for _, g := range groups {
		total += len(g.Items)
	}
	if total != len(items) {
		t.Errorf("Expected every item in exactly one group, got %d of %d", total, len(items))
	}
}

func TestTaskStatusBreakdown(t *testing.T) {
	tasks := []models.Task{
		{Status: "done"}, {Status: "todo"}, {Status: "blocked"},
		{Status: "in_progress"}, {Status: "todo"}, {Status: ""},
	}

	got := TaskStatusBreakdown(tasks)
	want := []StatusCount{
		{Status: "todo", Count: 2},
		{Status: "in_progress", Count: 1},
		{Status: "done", Count: 1},
		{Status: "blocked", Count: 1},
		{Status: "unknown", Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d statuses, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %+v at %d, got %+v", want[i], i, got[i])
		}
	}
}

func TestFindActiveSprint(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	past := models.Sprint{ID: "s1", Status: models.SprintStatusCompleted, StartDate: now.AddDate(0, 0, -20), EndDate: now.AddDate(0, 0, 5)}
	current := models.Sprint{ID: "s2", Status: models.SprintStatusPlanned, StartDate: now.AddDate(0, 0, -2), EndDate: now.AddDate(0, 0, 12)}
	flagged := models.Sprint{ID: "s3", Status: "ACTIVE"}

	tests := []struct {
		name    string
		sprints []models.Sprint
		want    string
	}{
		{"status wins over dates", []models.Sprint{current, flagged}, "s3"},
		{"date range fallback", []models.Sprint{past, current}, "s2"},
		{"completed sprint ignored", []models.Sprint{past}, ""},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindActiveSprint(tt.sprints, now)
			if tt.want == "" {
				if got != nil {
					t.Errorf("Expected no active sprint, got %s", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Errorf("Expected sprint %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestBuildRolePermissions(t *testing.T) {
	roles := []models.ProjectRole{
		{ID: "r1", Name: "Owner", Permissions: []string{"tasks.edit", "members.invite"}},
		{ID: "r2", Name: "Viewer"},
	}
	permissions := []models.Permission{{Key: "tasks.edit", Description: "Edit tasks"}}

	got := BuildRolePermissions(roles, permissions)
	if len(got) != 2 {
		t.Fatalf("Expected 2 roles, got %d", len(got))
	}
	if got[0].Permissions[0] != "Edit tasks" {
		t.Errorf("Expected description, got %s", got[0].Permissions[0])
	}
	if got[0].Permissions[1] != "members.invite" {
		t.Errorf("Expected unknown key shown as-is, got %s", got[0].Permissions[1])
	}
	if len(got[1].Permissions) != 0 {
		t.Errorf("Expected no permissions for viewer, got %v", got[1].Permissions)
	}

	names := RoleNameIndex(roles)
	if names["r2"] != "Viewer" {
		t.Errorf("Expected Viewer, got %s", names["r2"])
	}
}

func TestCompletionStats(t *testing.T) {
	items := []models.BacklogItem{{Status: "done"}, {Status: "Completed"}, {Status: "todo"}, {Status: "closed"}}
	done, total := CompletionStats(items)
	if done != 3 || total != 4 {
		t.Errorf("Expected 3 of 4 done, got %d of %d", done, total)
	}
}
