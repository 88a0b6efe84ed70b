package services

import (
	"fmt"
	"math"
	"projectpilot/internal/models"
	"strings"
	"time"
)

const (
	historyContentLimit = 400
	dateLayout          = "2006-01-02"
)

// BoundedList is a rendered list capped at a fixed size
type BoundedList struct {
	Lines     []string
	Remainder int // total - len(Lines)
}

// RenderBoundedList formats at most limit items. Remainder is always the
// exact number of items left out.
func RenderBoundedList[T any](items []T, limit int, format func(T) string) BoundedList {
	if limit < 0 {
		limit = 0
	}
	shown := len(items)
	if shown > limit {
		shown = limit
	}

	lines := make([]string, 0, shown)
	for _, item := range items[:shown] {
		lines = append(lines, format(item))
	}
	return BoundedList{Lines: lines, Remainder: len(items) - shown}
}

// writeTo appends the lines with the given prefix and the remainder marker
func (b BoundedList) writeTo(sb *strings.Builder, prefix string) {
	for _, line := range b.Lines {
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if b.Remainder > 0 {
		fmt.Fprintf(sb, "%s...and %d more\n", prefix, b.Remainder)
	}
}

// CurrentUser is the requesting user as seen by the prompt
type CurrentUser struct {
	ID       string
	Name     string
	Nickname string
	Role     string
}

// RolePermissions is a role name with human-readable permission descriptions
type RolePermissions struct {
	Role        string
	Permissions []string
}

// BacklogGroup is the backlog items of one type
type BacklogGroup struct {
	Type  string
	Items []models.BacklogItem
}

// StatusCount is the number of tasks in one status
type StatusCount struct {
	Status string
	Count  int
}

// PromptContext is everything gathered for one request, ready to render
type PromptContext struct {
	Question  string
	Language  string
	Verbosity string
	Now       time.Time
	ListCap   int

	User         CurrentUser
	History      []models.Message
	Project      models.ProjectData
	Members      []models.ProjectMember
	RoleNames    map[string]string
	Roles        []RolePermissions
	ActiveSprint *models.Sprint
	SprintTasks  []models.Task
	Backlog      []BacklogGroup
	TaskStatuses []StatusCount
	Completion   *models.ProjectStats
	Gamification *models.GamificationSnapshot
}

// RenderPrompt renders the context as a single instruction block. Sections
// with no data are omitted.
func RenderPrompt(pc *PromptContext) string {
	var sb strings.Builder

	name := pc.Project.Name
	if name == "" {
		name = pc.Project.ID
	}
	fmt.Fprintf(&sb, "You are the project assistant for the project %q. Answer only using the project data below. "+
		"If the data does not contain the answer, say so instead of guessing.\n\n", name)

	writeCurrentUser(&sb, pc)
	writeGamificationStatus(&sb, pc)
	writeRecentConversation(&sb, pc)
	writeProjectOverview(&sb, pc)
	writeTeam(&sb, pc)
	writeSprintStatus(&sb, pc)
	writeBacklog(&sb, pc)
	writeTaskStatuses(&sb, pc)
	writeLeaderboard(&sb, pc)
	writeRecentActivity(&sb, pc)
	writeInstructions(&sb, pc)

	return sb.String()
}

func section(sb *strings.Builder, title string) {
	sb.WriteString("## ")
	sb.WriteString(title)
	sb.WriteByte('\n')
}

func round(v float64) int {
	return int(math.Round(v))
}

func writeCurrentUser(sb *strings.Builder, pc *PromptContext) {
	u := pc.User
	if u.ID == "" && u.Name == "" {
		return
	}
	section(sb, "CURRENT USER")
	if u.Name != "" {
		fmt.Fprintf(sb, "- Name: %s\n", u.Name)
	} else {
		fmt.Fprintf(sb, "- User ID: %s\n", u.ID)
	}
	if u.Nickname != "" {
		fmt.Fprintf(sb, "- Prefers to be called: %s\n", u.Nickname)
	}
	if u.Role != "" {
		fmt.Fprintf(sb, "- Role: %s\n", u.Role)
	}
	sb.WriteByte('\n')
}

func writeGamificationStatus(sb *strings.Builder, pc *PromptContext) {
	if pc.Gamification == nil || pc.Gamification.User == nil {
		return
	}
	user := pc.Gamification.User
	section(sb, "GAMIFICATION STATUS")
	fmt.Fprintf(sb, "- Points: %d (level %d)\n", user.TotalPoints, user.Level)
	if rank := pc.Gamification.UserRank(pc.User.ID); rank > 0 {
		fmt.Fprintf(sb, "- Rank: %d of %d\n", rank, len(pc.Gamification.Leaderboard))
	}
	if len(user.Badges) > 0 {
		badges := RenderBoundedList(user.Badges, pc.ListCap, func(b models.Badge) string { return b.Name })
		sb.WriteString("- Badges:\n")
		badges.writeTo(sb, "  - ")
	}
	sb.WriteByte('\n')
}

func writeRecentConversation(sb *strings.Builder, pc *PromptContext) {
	if len(pc.History) == 0 {
		return
	}
	section(sb, "RECENT CONVERSATION")
	for _, msg := range pc.History {
		speaker := "User"
		if msg.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(sb, "%s: %s\n", speaker, truncateRunes(msg.Content, historyContentLimit))
	}
	sb.WriteByte('\n')
}

func writeProjectOverview(sb *strings.Builder, pc *PromptContext) {
	p := pc.Project
	section(sb, "PROJECT OVERVIEW")
	fmt.Fprintf(sb, "- Name: %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(sb, "- Description: %s\n", p.Description)
	}
	if p.Status != "" {
		fmt.Fprintf(sb, "- Status: %s\n", p.Status)
	}
	if p.StartDate != nil || p.EndDate != nil {
		fmt.Fprintf(sb, "- Dates: %s to %s\n", formatDate(p.StartDate), formatDate(p.EndDate))
	}
	if c := pc.Completion; c != nil && c.TotalItems > 0 {
		fmt.Fprintf(sb, "- Completion: %d%% (%d of %d backlog items done)\n",
			round(c.CompletionRate), c.CompletedItems, c.TotalItems)
	}
	if c := pc.Completion; c != nil && c.Contributors > 0 {
		fmt.Fprintf(sb, "- Team points: %d total, %d average per contributor\n",
			c.TotalPoints, round(c.AveragePoints))
	}
	sb.WriteByte('\n')
}

func writeTeam(sb *strings.Builder, pc *PromptContext) {
	if len(pc.Members) == 0 && len(pc.Roles) == 0 {
		return
	}
	if len(pc.Members) > 0 {
		section(sb, fmt.Sprintf("TEAM (%d members)", len(pc.Members)))
		members := RenderBoundedList(pc.Members, pc.ListCap, func(m models.ProjectMember) string {
			return formatMember(m, pc.RoleNames)
		})
		members.writeTo(sb, "- ")
	} else {
		section(sb, "TEAM")
	}
	if len(pc.Roles) > 0 {
		sb.WriteString("Role permissions:\n")
		for _, role := range pc.Roles {
			if len(role.Permissions) == 0 {
				fmt.Fprintf(sb, "- %s: no permissions\n", role.Role)
				continue
			}
			fmt.Fprintf(sb, "- %s: %s\n", role.Role, strings.Join(role.Permissions, "; "))
		}
	}
	sb.WriteByte('\n')
}

func formatMember(m models.ProjectMember, roleNames map[string]string) string {
	name := m.Name
	if name == "" {
		name = "User " + m.UserID
	}
	var details []string
	if roleName := roleNames[m.RoleID]; roleName != "" {
		details = append(details, "project role: "+roleName)
	}
	if m.Role != "" {
		details = append(details, "position: "+m.Role)
	}
	if m.Email != "" {
		details = append(details, m.Email)
	}
	if len(details) == 0 {
		return name
	}
	return name + " (" + strings.Join(details, ", ") + ")"
}

func writeSprintStatus(sb *strings.Builder, pc *PromptContext) {
	sprint := pc.ActiveSprint
	if sprint == nil {
		return
	}
	section(sb, "SPRINT STATUS")
	fmt.Fprintf(sb, "- Active sprint: %s\n", sprint.Name)
	if sprint.Goal != "" {
		fmt.Fprintf(sb, "- Goal: %s\n", sprint.Goal)
	}
	if !sprint.StartDate.IsZero() && !sprint.EndDate.IsZero() {
		fmt.Fprintf(sb, "- Dates: %s to %s\n", sprint.StartDate.Format(dateLayout), sprint.EndDate.Format(dateLayout))
		if !pc.Now.IsZero() {
			days := round(sprint.EndDate.Sub(pc.Now).Hours() / 24)
			if days >= 0 {
				fmt.Fprintf(sb, "- Days remaining: %d\n", days)
			} else {
				fmt.Fprintf(sb, "- Overdue by %d days\n", -days)
			}
		}
	}
	if len(pc.SprintTasks) > 0 {
		done := 0
		for _, t := range pc.SprintTasks {
			if IsDoneStatus(t.Status) {
				done++
			}
		}
		fmt.Fprintf(sb, "- Tasks: %d of %d done\n", done, len(pc.SprintTasks))
		tasks := RenderBoundedList(pc.SprintTasks, pc.ListCap, func(t models.Task) string {
			return formatTask(t, pc.Members)
		})
		tasks.writeTo(sb, "  - ")
	}
	sb.WriteByte('\n')
}

func formatTask(t models.Task, members []models.ProjectMember) string {
	line := fmt.Sprintf("[%s] %s", t.Status, t.Title)
	if t.AssigneeID != "" {
		line += " - assigned to " + memberName(t.AssigneeID, members)
	}
	if t.EstimatedHours > 0 {
		line += fmt.Sprintf(" (%dh)", round(t.EstimatedHours))
	}
	return line
}

func memberName(userID string, members []models.ProjectMember) string {
	for _, m := range members {
		if m.UserID == userID && m.Name != "" {
			return m.Name
		}
	}
	return "user " + userID
}

func writeBacklog(sb *strings.Builder, pc *PromptContext) {
	if len(pc.Backlog) == 0 {
		return
	}
	section(sb, "BACKLOG BY TYPE")
	for _, group := range pc.Backlog {
		done := 0
		for _, item := range group.Items {
			if IsDoneStatus(item.Status) {
				done++
			}
		}
		fmt.Fprintf(sb, "%s: %d items (%d done)\n", titleCase(group.Type), len(group.Items), done)
		items := RenderBoundedList(group.Items, pc.ListCap, func(item models.BacklogItem) string {
			line := fmt.Sprintf("[%s] %s", item.Status, item.Title)
			if item.Priority != "" {
				line += ", priority " + item.Priority
			}
			if item.Points > 0 {
				line += fmt.Sprintf(", %d pts", item.Points)
			}
			if item.AssigneeID != "" {
				line += ", assigned to " + memberName(item.AssigneeID, pc.Members)
			}
			return line
		})
		items.writeTo(sb, "- ")
	}
	sb.WriteByte('\n')
}

func writeTaskStatuses(sb *strings.Builder, pc *PromptContext) {
	if len(pc.TaskStatuses) == 0 {
		return
	}
	section(sb, "TASK STATUS BREAKDOWN")
	for _, sc := range pc.TaskStatuses {
		fmt.Fprintf(sb, "- %s: %d\n", sc.Status, sc.Count)
	}
	sb.WriteByte('\n')
}

func writeLeaderboard(sb *strings.Builder, pc *PromptContext) {
	if pc.Gamification == nil || len(pc.Gamification.Leaderboard) == 0 {
		return
	}
	section(sb, "LEADERBOARD")
	entries := RenderBoundedList(pc.Gamification.Leaderboard, pc.ListCap, func(e models.LeaderboardEntry) string {
		name := e.Name
		if name == "" {
			name = memberName(e.UserID, pc.Members)
		}
		return fmt.Sprintf("%d. %s - %d pts", e.Rank, name, e.Points)
	})
	entries.writeTo(sb, "")
	sb.WriteByte('\n')
}

func writeRecentActivity(sb *strings.Builder, pc *PromptContext) {
	if pc.Gamification == nil || len(pc.Gamification.RecentActivity) == 0 {
		return
	}
	section(sb, "RECENT ACTIVITY")
	activity := RenderBoundedList(pc.Gamification.RecentActivity, pc.ListCap, func(a models.ActivityEntry) string {
		name := a.UserName
		if name == "" {
			name = memberName(a.UserID, pc.Members)
		}
		line := fmt.Sprintf("%s: %s (+%d pts)", name, a.Action, a.Points)
		if !a.CreatedAt.IsZero() {
			line += " on " + a.CreatedAt.Format(dateLayout)
		}
		return line
	})
	activity.writeTo(sb, "- ")
	sb.WriteByte('\n')
}

func writeInstructions(sb *strings.Builder, pc *PromptContext) {
	section(sb, "RESPONSE INSTRUCTIONS")
	if pc.Language == models.LanguageSpanish {
		sb.WriteString("- Respond in Spanish.\n")
	} else {
		sb.WriteString("- Respond in English.\n")
	}
	if pc.User.Nickname != "" {
		fmt.Fprintf(sb, "- Address the user as %s.\n", pc.User.Nickname)
	}
	switch pc.Verbosity {
	case models.VerbosityConcise:
		sb.WriteString("- Keep the answer to two or three sentences.\n")
	case models.VerbosityDetailed:
		sb.WriteString("- Give a thorough answer with supporting detail from the data.\n")
	default:
		sb.WriteString("- Keep the answer focused and reasonably short.\n")
	}
	sb.WriteString("- Use markdown lists or bold text when it helps readability.\n")
	sb.WriteString("- Only discuss this project. Politely decline unrelated requests.\n")
	sb.WriteString("\nUser question: ")
	sb.WriteString(pc.Question)
	sb.WriteByte('\n')
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "unset"
	}
	return t.Format(dateLayout)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// HasMarkdown reports whether text contains common markdown markers
func HasMarkdown(text string) bool {
	markers := []string{"**", "__", "##", "```", "`", "\n- ", "\n* ", "\n1. ", "](", "\n> "}
	if strings.HasPrefix(text, "- ") || strings.HasPrefix(text, "* ") || strings.HasPrefix(text, "#") {
		return true
	}
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
