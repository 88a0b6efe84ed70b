package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"projectpilot/internal/models"
	"sort"
	"sync"
	"time"
)

// GamificationRepository reads point, badge and activity records
type GamificationRepository interface {
	GetUserPoints(ctx context.Context, userID, projectID string) (points int, level int, err error)
	GetUserBadges(ctx context.Context, userID string) ([]models.Badge, error)
	// GetProjectPoints returns one unranked row per contributor, ordered by user id
	GetProjectPoints(ctx context.Context, projectID string) ([]models.LeaderboardEntry, error)
	GetRecentActivity(ctx context.Context, projectID string, limit int) ([]models.ActivityEntry, error)
}

// CompletionSource reports backlog completion for a project
type CompletionSource interface {
	CompletionCounts(projectID string) (done, total int, ok bool)
}

// SQLGamificationRepository reads gamification tables from the relational store
type SQLGamificationRepository struct {
	db *sql.DB
}

// NewSQLGamificationRepository creates a repository over db
func NewSQLGamificationRepository(db *sql.DB) *SQLGamificationRepository {
	return &SQLGamificationRepository{db: db}
}

// GetUserPoints returns 0 points at level 1 for users with no record yet
func (r *SQLGamificationRepository) GetUserPoints(ctx context.Context, userID, projectID string) (int, int, error) {
	var points, level int
	err := r.db.QueryRowContext(ctx,
		`SELECT total_points, level FROM user_points WHERE user_id = ? AND project_id = ?`,
		userID, projectID,
	).Scan(&points, &level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 1, nil
		}
		return 0, 0, fmt.Errorf("failed to query user points: %w", err)
	}
	return points, level, nil
}

func (r *SQLGamificationRepository) GetUserBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT badge_key, name, description, earned_at
		FROM user_badges
		WHERE user_id = ?
		ORDER BY earned_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer rows.Close()

	badges := []models.Badge{}
	for rows.Next() {
		var b models.Badge
		var description sql.NullString
		var earnedAt sql.NullTime
		if err := rows.Scan(&b.Key, &b.Name, &description, &earnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		b.Description = description.String
		if earnedAt.Valid {
			b.EarnedAt = earnedAt.Time
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (r *SQLGamificationRepository) GetProjectPoints(ctx context.Context, projectID string) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT up.user_id, u.name, up.total_points
		FROM user_points up
		LEFT JOIN users u ON u.id = up.user_id
		WHERE up.project_id = ?
		ORDER BY up.user_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project points: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		var name sql.NullString
		if err := rows.Scan(&e.UserID, &name, &e.Points); err != nil {
			return nil, fmt.Errorf("failed to scan project points: %w", err)
		}
		e.Name = name.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLGamificationRepository) GetRecentActivity(ctx context.Context, projectID string, limit int) ([]models.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pt.user_id, u.name, pt.action, pt.points, pt.created_at
		FROM point_transactions pt
		LEFT JOIN users u ON u.id = pt.user_id
		WHERE pt.project_id = ?
		ORDER BY pt.created_at DESC, pt.id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	defer rows.Close()

	activity := []models.ActivityEntry{}
	for rows.Next() {
		var a models.ActivityEntry
		var name sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&a.UserID, &name, &a.Action, &a.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.UserName = name.String
		if createdAt.Valid {
			a.CreatedAt = createdAt.Time
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// RankLeaderboard sorts entries by points descending and assigns ranks 1..N.
// Ties keep their input order.
func RankLeaderboard(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	ranked := append([]models.LeaderboardEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Points > ranked[j].Points
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// GamificationService aggregates the per-request gamification snapshot
type GamificationService struct {
	repo          GamificationRepository
	completion    CompletionSource
	activityLimit int
}

// NewGamificationService creates the aggregator. completion may be nil.
func NewGamificationService(repo GamificationRepository, completion CompletionSource, activityLimit int) *GamificationService {
	if activityLimit <= 0 {
		activityLimit = 10
	}
	return &GamificationService{
		repo:          repo,
		completion:    completion,
		activityLimit: activityLimit,
	}
}

// Snapshot runs the four reads concurrently. A failed read leaves its
// section empty and never fails the snapshot.
func (s *GamificationService) Snapshot(ctx context.Context, userID, projectID string) *models.GamificationSnapshot {
	snapshot := &models.GamificationSnapshot{
		Leaderboard:    []models.LeaderboardEntry{},
		RecentActivity: []models.ActivityEntry{},
	}
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		user, err := s.userStats(ctx, userID, projectID)
		if err != nil {
			log.Printf("⚠️  [GAMIFICATION] User stats unavailable for %s: %v", userID, err)
			return
		}
		snapshot.User = user
	}()

	go func() {
		defer wg.Done()
		entries, err := s.repo.GetProjectPoints(ctx, projectID)
		if err != nil {
			log.Printf("⚠️  [GAMIFICATION] Leaderboard unavailable for project %s: %v", projectID, err)
			return
		}
		snapshot.Leaderboard = RankLeaderboard(entries)
	}()

	go func() {
		defer wg.Done()
		activity, err := s.repo.GetRecentActivity(ctx, projectID, s.activityLimit)
		if err != nil {
			log.Printf("⚠️  [GAMIFICATION] Recent activity unavailable for project %s: %v", projectID, err)
			return
		}
		snapshot.RecentActivity = activity
	}()

	go func() {
		defer wg.Done()
		stats, err := s.projectStats(ctx, projectID)
		if err != nil {
			log.Printf("⚠️  [GAMIFICATION] Project stats unavailable for project %s: %v", projectID, err)
			return
		}
		snapshot.ProjectStats = stats
	}()

	wg.Wait()
	GetMetrics().RecordStage("gamification", time.Since(start).Seconds())

	return snapshot
}

func (s *GamificationService) userStats(ctx context.Context, userID, projectID string) (*models.UserGamification, error) {
	points, level, err := s.repo.GetUserPoints(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	badges, err := s.repo.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserGamification{
		UserID:      userID,
		TotalPoints: points,
		Level:       level,
		Badges:      badges,
	}, nil
}

func (s *GamificationService) projectStats(ctx context.Context, projectID string) (*models.ProjectStats, error) {
	entries, err := s.repo.GetProjectPoints(ctx, projectID)
	if err != nil {
		return nil, err
	}

	stats := &models.ProjectStats{Contributors: len(entries)}
	for _, e := range entries {
		stats.TotalPoints += e.Points
	}
	if stats.Contributors > 0 {
		stats.AveragePoints = float64(stats.TotalPoints) / float64(stats.Contributors)
	}

	if s.completion != nil {
		if done, total, ok := s.completion.CompletionCounts(projectID); ok {
			stats.CompletedItems = done
			stats.TotalItems = total
			if total > 0 {
				stats.CompletionRate = float64(done) / float64(total) * 100
			}
		}
	}
	return stats, nil
}
