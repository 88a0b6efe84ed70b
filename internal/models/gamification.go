package models

import (
	"time"
)

// Badge is an achievement earned by a user
type Badge struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// UserGamification is a user's point record within a project
type UserGamification struct {
	UserID      string  `json:"userId"`
	TotalPoints int     `json:"totalPoints"`
	Level       int     `json:"level"`
	Badges      []Badge `json:"badges"`
}

// LeaderboardEntry is one ranked row of a project leaderboard
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Points int    `json:"points"`
	Rank   int    `json:"rank"`
}

// ActivityEntry is a point-earning event
type ActivityEntry struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Action    string    `json:"action"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectStats summarizes project-wide progress and points
type ProjectStats struct {
	CompletionRate float64 `json:"completionRate"`
	TotalPoints    int     `json:"totalPoints"`
	AveragePoints  float64 `json:"averagePoints"`
	CompletedItems int     `json:"completedItems"`
	TotalItems     int     `json:"totalItems"`
	Contributors   int     `json:"contributors"`
}

// GamificationSnapshot is recomputed on every request, never cached
type GamificationSnapshot struct {
	User           *UserGamification
	Leaderboard    []LeaderboardEntry
	RecentActivity []ActivityEntry
	ProjectStats   *ProjectStats
}

// UserRank returns the rank of userID on the leaderboard, or 0 when absent
func (g *GamificationSnapshot) UserRank(userID string) int {
	if g == nil {
		return 0
	}
	for _, entry := range g.Leaderboard {
		if entry.UserID == userID {
			return entry.Rank
		}
	}
	return 0
}
