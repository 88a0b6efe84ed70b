package jobs

import (
	"context"
	"log"
)

// SubscriptionCache is the part of the project cache the repair job needs
type SubscriptionCache interface {
	ProjectsWithoutSubscription() []string
	EnsureSubscribed(projectID string) error
}

// SubscriptionRepairJob re-opens change subscriptions for cached projects
// whose feed was dropped and that have seen no request since
type SubscriptionRepairJob struct {
	cache SubscriptionCache
}

// NewSubscriptionRepairJob creates the repair job
func NewSubscriptionRepairJob(cache SubscriptionCache) *SubscriptionRepairJob {
	return &SubscriptionRepairJob{cache: cache}
}

// Run re-subscribes every orphaned project. A failure for one project does
// not stop the others.
func (j *SubscriptionRepairJob) Run(ctx context.Context) error {
	missing := j.cache.ProjectsWithoutSubscription()
	if len(missing) == 0 {
		return nil
	}

	log.Printf("[SUBSCRIPTION-REPAIR] %d cached project(s) without a live subscription", len(missing))

	repaired := 0
	for _, projectID := range missing {
		select {
		case <-ctx.Done():
			log.Println("[SUBSCRIPTION-REPAIR] Cancelled")
			return ctx.Err()
		default:
		}

		if err := j.cache.EnsureSubscribed(projectID); err != nil {
			log.Printf("[SUBSCRIPTION-REPAIR] Project %s: %v", projectID, err)
			continue
		}
		repaired++
	}

	log.Printf("[SUBSCRIPTION-REPAIR] Re-subscribed %d of %d project(s)", repaired, len(missing))
	return nil
}
