package models

import (
	"time"
)

// ProjectData is the project document itself
type ProjectData struct {
	ID          string     `bson:"_id" json:"id"`
	Name        string     `bson:"name" json:"name"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Status      string     `bson:"status,omitempty" json:"status,omitempty"`
	OwnerID     string     `bson:"ownerId,omitempty" json:"owner_id,omitempty"`
	StartDate   *time.Time `bson:"startDate,omitempty" json:"start_date,omitempty"`
	EndDate     *time.Time `bson:"endDate,omitempty" json:"end_date,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
}

// ProjectMember links a user to a project role.
// Name, Email and Role are filled in from the relational user profile when available.
type ProjectMember struct {
	UserID    string    `bson:"userId" json:"user_id"`
	ProjectID string    `bson:"projectId" json:"project_id"`
	RoleID    string    `bson:"roleId,omitempty" json:"role_id,omitempty"`
	JoinedAt  time.Time `bson:"joinedAt" json:"joined_at"`

	Name  string `bson:"-" json:"name,omitempty"`
	Email string `bson:"-" json:"email,omitempty"`
	Role  string `bson:"-" json:"role,omitempty"`
}

// BacklogItem is a story, bug, epic or task sitting in the project backlog
type BacklogItem struct {
	ID         string `bson:"_id" json:"id"`
	ProjectID  string `bson:"projectId" json:"project_id"`
	Title      string `bson:"title" json:"title"`
	Type       string `bson:"type" json:"type"`     // story, bug, epic, task
	Status     string `bson:"status" json:"status"` // todo, in_progress, done
	Priority   string `bson:"priority,omitempty" json:"priority,omitempty"`
	Points     int    `bson:"points,omitempty" json:"points,omitempty"`
	AssigneeID string `bson:"assigneeId,omitempty" json:"assignee_id,omitempty"`
	SprintID   string `bson:"sprintId,omitempty" json:"sprint_id,omitempty"`
}

// ProjectRole is a named set of permission keys scoped to one project
type ProjectRole struct {
	ID          string   `bson:"_id" json:"id"`
	ProjectID   string   `bson:"projectId" json:"project_id"`
	Name        string   `bson:"name" json:"name"`
	Permissions []string `bson:"permissions" json:"permissions"`
}

// Permission describes a permission key
type Permission struct {
	Key         string `bson:"_id" json:"key"`
	Description string `bson:"description" json:"description"`
}

// Sprint statuses
const (
	SprintStatusPlanned   = "planned"
	SprintStatusActive    = "active"
	SprintStatusCompleted = "completed"
)

// Sprint is a time-boxed iteration
type Sprint struct {
	ID        string    `bson:"_id" json:"id"`
	ProjectID string    `bson:"projectId" json:"project_id"`
	Name      string    `bson:"name" json:"name"`
	Goal      string    `bson:"goal,omitempty" json:"goal,omitempty"`
	Status    string    `bson:"status" json:"status"`
	StartDate time.Time `bson:"startDate" json:"start_date"`
	EndDate   time.Time `bson:"endDate" json:"end_date"`
}

// Task is a unit of sprint work, usually derived from a backlog item
type Task struct {
	ID             string  `bson:"_id" json:"id"`
	ProjectID      string  `bson:"projectId" json:"project_id"`
	SprintID       string  `bson:"sprintId,omitempty" json:"sprint_id,omitempty"`
	BacklogItemID  string  `bson:"backlogItemId,omitempty" json:"backlog_item_id,omitempty"`
	Title          string  `bson:"title" json:"title"`
	Status         string  `bson:"status" json:"status"`
	AssigneeID     string  `bson:"assigneeId,omitempty" json:"assignee_id,omitempty"`
	EstimatedHours float64 `bson:"estimatedHours,omitempty" json:"estimated_hours,omitempty"`
}

// ProjectSnapshot is the full aggregate read of a project from the document store
type ProjectSnapshot struct {
	Project              ProjectData
	Members              []ProjectMember
	BacklogItems         []BacklogItem
	ProjectRoles         []ProjectRole
	AvailablePermissions []Permission
	Sprints              []Sprint
	Tasks                []Task
}

// Clone returns a deep copy so callers never alias cached slices
func (s *ProjectSnapshot) Clone() *ProjectSnapshot {
	if s == nil {
		return nil
	}
	out := &ProjectSnapshot{
		Project:              s.Project,
		Members:              append([]ProjectMember(nil), s.Members...),
		BacklogItems:         append([]BacklogItem(nil), s.BacklogItems...),
		AvailablePermissions: append([]Permission(nil), s.AvailablePermissions...),
		Sprints:              append([]Sprint(nil), s.Sprints...),
		Tasks:                append([]Task(nil), s.Tasks...),
	}
	if s.Project.StartDate != nil {
		t := *s.Project.StartDate
		out.Project.StartDate = &t
	}
	if s.Project.EndDate != nil {
		t := *s.Project.EndDate
		out.Project.EndDate = &t
	}
	if s.ProjectRoles != nil {
		out.ProjectRoles = make([]ProjectRole, len(s.ProjectRoles))
		for i, role := range s.ProjectRoles {
			role.Permissions = append([]string(nil), role.Permissions...)
			out.ProjectRoles[i] = role
		}
	}
	return out
}

// ProjectCacheEntry is one cached project aggregate
type ProjectCacheEntry struct {
	ProjectID   string
	Snapshot    *ProjectSnapshot
	LastUpdated time.Time
}

// Clone returns a deep copy of the entry
func (e *ProjectCacheEntry) Clone() *ProjectCacheEntry {
	if e == nil {
		return nil
	}
	return &ProjectCacheEntry{
		ProjectID:   e.ProjectID,
		Snapshot:    e.Snapshot.Clone(),
		LastUpdated: e.LastUpdated,
	}
}

// IsFresh reports whether the entry was refreshed within window of now
func (e *ProjectCacheEntry) IsFresh(now time.Time, window time.Duration) bool {
	if e == nil || e.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(e.LastUpdated) <= window
}

// UserProfile is the relational-store view of a user
type UserProfile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
