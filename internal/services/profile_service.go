package services

import (
	"context"
	"database/sql"
	"fmt"
	"projectpilot/internal/models"
	"strings"
)

// ProfileLookup resolves user profiles in one batched read
type ProfileLookup interface {
	LookupProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error)
}

// SQLProfileLookup reads profiles from the users table
type SQLProfileLookup struct {
	db *sql.DB
}

// NewSQLProfileLookup creates a profile lookup over db
func NewSQLProfileLookup(db *sql.DB) *SQLProfileLookup {
	return &SQLProfileLookup{db: db}
}

// LookupProfiles returns profiles keyed by user id. Unknown ids are absent from the map.
func (l *SQLProfileLookup) LookupProfiles(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	profiles := make(map[string]models.UserProfile)

	ids := uniqueStrings(userIDs)
	if len(ids) == 0 {
		return profiles, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, name, email, role FROM users WHERE id IN (%s)`, placeholders)
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.UserProfile
		var name, email, role sql.NullString
		if err := rows.Scan(&p.UserID, &name, &email, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		p.Name = name.String
		p.Email = email.String
		p.Role = role.String
		profiles[p.UserID] = p
	}
	return profiles, rows.Err()
}

// EnrichMembers copies profile fields onto members. Members without a
// profile are returned unchanged.
func EnrichMembers(members []models.ProjectMember, profiles map[string]models.UserProfile) []models.ProjectMember {
	out := make([]models.ProjectMember, len(members))
	for i, m := range members {
		if p, ok := profiles[m.UserID]; ok {
			m.Name = p.Name
			m.Email = p.Email
			m.Role = p.Role
		}
		out[i] = m
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
