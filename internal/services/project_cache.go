package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"projectpilot/internal/models"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ErrCacheClosed is returned when subscribing after Close
var ErrCacheClosed = errors.New("project cache is closed")

const refreshTimeout = 30 * time.Second

// Cache event types exchanged between instances
const (
	CacheEventClear      = "clear"
	CacheEventInvalidate = "invalidate"
)

// CacheEvent is broadcast so other instances drop the same state
type CacheEvent struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	Origin    string `json:"origin"`
}

// CacheEventPublisher broadcasts cache events to other instances
type CacheEventPublisher interface {
	PublishCacheEvent(ctx context.Context, event CacheEvent) error
}

// CacheStats is a point-in-time view of the cache
type CacheStats struct {
	Entries       int `json:"entries"`
	Subscriptions int `json:"subscriptions"`
}

// subscription is one live change feed. stop is idempotent.
type subscription struct {
	cancel func()
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// keyLock serializes work on one project. refs counts holders and waiters so
// the lock is dropped from the table once nobody needs it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// ProjectDataCache keeps project aggregates in memory and refreshes them
// wholesale whenever the project's change feed fires. There is at most one
// live subscription per project. Entries never expire on their own.
type ProjectDataCache struct {
	source  ProjectSource
	entries *cache.Cache
	group   singleflight.Group

	mu     sync.Mutex
	subs   map[string]*subscription
	locks  map[string]*keyLock
	closed bool

	closeOnce sync.Once
	publisher CacheEventPublisher
	now       func() time.Time
}

// NewProjectDataCache creates a cache backed by source
func NewProjectDataCache(source ProjectSource) *ProjectDataCache {
	return &ProjectDataCache{
		source:  source,
		entries: cache.New(cache.NoExpiration, 0),
		subs:    make(map[string]*subscription),
		locks:   make(map[string]*keyLock),
		now:     time.Now,
	}
}

// SetPublisher wires cross-instance invalidation. Must be called before serving.
func (c *ProjectDataCache) SetPublisher(publisher CacheEventPublisher) {
	c.publisher = publisher
}

// lockKey serializes populate, refresh, subscribe and teardown for one project.
// Call the returned func to release.
func (c *ProjectDataCache) lockKey(projectID string) func() {
	c.mu.Lock()
	kl, ok := c.locks[projectID]
	if !ok {
		kl = &keyLock{}
		c.locks[projectID] = kl
	}
	kl.refs++
	c.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		c.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(c.locks, projectID)
		}
		c.mu.Unlock()
	}
}

// lockCount reports how many per-project locks are held or awaited
func (c *ProjectDataCache) lockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}

// Get returns a copy of the cached entry
func (c *ProjectDataCache) Get(projectID string) (*models.ProjectCacheEntry, bool) {
	value, found := c.entries.Get(projectID)
	if !found {
		return nil, false
	}
	entry, ok := value.(*models.ProjectCacheEntry)
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// GetOrPopulate returns the cached entry, loading it from the source on a miss.
// Concurrent misses for the same project share one load, which outlives the
// caller that started it. An entry stored by a refresh is never overwritten.
func (c *ProjectDataCache) GetOrPopulate(ctx context.Context, projectID string) (*models.ProjectCacheEntry, error) {
	if entry, ok := c.Get(projectID); ok {
		GetMetrics().RecordCacheLookup(true)
		return entry, nil
	}
	GetMetrics().RecordCacheLookup(false)

	v, err, _ := c.group.Do(projectID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		unlock := c.lockKey(projectID)
		defer unlock()

		// A refresh may have stored a newer aggregate while we waited
		if value, found := c.entries.Get(projectID); found {
			return value, nil
		}

		snapshot, err := c.source.LoadProject(loadCtx, projectID)
		if err != nil {
			return nil, err
		}
		entry := &models.ProjectCacheEntry{
			ProjectID:   projectID,
			Snapshot:    snapshot,
			LastUpdated: c.now(),
		}
		c.entries.Set(projectID, entry, cache.NoExpiration)
		log.Printf("📦 [PROJECT-CACHE] Populated project %s (%d members, %d backlog items)",
			projectID, len(snapshot.Members), len(snapshot.BacklogItems))
		return entry, nil
	})
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return nil, &NotFoundError{Resource: "project", ID: projectID, Err: err}
		}
		return nil, fmt.Errorf("failed to populate project %s: %w", projectID, err)
	}

	return v.(*models.ProjectCacheEntry).Clone(), nil
}

// EnsureSubscribed opens a change subscription for projectID unless one is
// already live. Concurrent callers for the same project open exactly one.
func (c *ProjectDataCache) EnsureSubscribed(projectID string) error {
	unlock := c.lockKey(projectID)
	defer unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	if _, exists := c.subs[projectID]; exists {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sub := &subscription{}
	cancel, err := c.source.Watch(projectID, ChangeListener{
		OnChange: func() { c.refresh(projectID, sub) },
		OnError:  func(err error) { c.dropSubscription(projectID, sub, err) },
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to project %s: %w", projectID, err)
	}
	sub.cancel = cancel

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.stop()
		return ErrCacheClosed
	}
	c.subs[projectID] = sub
	c.mu.Unlock()

	log.Printf("🔌 [PROJECT-CACHE] Subscribed to project %s", projectID)
	return nil
}

// refresh reloads the aggregate and replaces the entry. On failure the stale
// entry is kept. It holds the project lock, so a populate that started
// earlier has either stored its result already or will see this one.
func (c *ProjectDataCache) refresh(projectID string, sub *subscription) {
	unlock := c.lockKey(projectID)
	defer unlock()

	if !c.isCurrent(projectID, sub) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	snapshot, err := c.source.LoadProject(ctx, projectID)
	if err != nil {
		log.Printf("⚠️  [PROJECT-CACHE] Refresh failed for project %s, keeping stale entry: %v", projectID, err)
		return
	}

	// A clear does not take the project lock and may have raced the load
	if !c.isCurrent(projectID, sub) {
		return
	}

	c.entries.Set(projectID, &models.ProjectCacheEntry{
		ProjectID:   projectID,
		Snapshot:    snapshot,
		LastUpdated: c.now(),
	}, cache.NoExpiration)
}

func (c *ProjectDataCache) isCurrent(projectID string, sub *subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[projectID] == sub
}

// dropSubscription removes a failed subscription so the next request
// re-subscribes. The cached entry stays.
func (c *ProjectDataCache) dropSubscription(projectID string, sub *subscription, cause error) {
	unlock := c.lockKey(projectID)
	defer unlock()

	c.mu.Lock()
	if c.subs[projectID] == sub {
		delete(c.subs, projectID)
	}
	c.mu.Unlock()

	sub.stop()
	log.Printf("⚠️  [PROJECT-CACHE] Subscription for project %s dropped: %v", projectID, cause)
}

// Unsubscribe cancels the project's subscription, if any, and keeps its entry
func (c *ProjectDataCache) Unsubscribe(projectID string) {
	unlock := c.lockKey(projectID)
	defer unlock()

	c.removeSubscription(projectID)
}

func (c *ProjectDataCache) removeSubscription(projectID string) {
	c.mu.Lock()
	sub := c.subs[projectID]
	delete(c.subs, projectID)
	c.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

// Invalidate drops one project's entry and subscription
func (c *ProjectDataCache) Invalidate(projectID string) {
	c.invalidate(projectID, true)
}

func (c *ProjectDataCache) invalidate(projectID string, broadcast bool) {
	unlock := c.lockKey(projectID)
	c.removeSubscription(projectID)
	c.entries.Delete(projectID)
	unlock()

	log.Printf("🗑️  [PROJECT-CACHE] Invalidated project %s", projectID)
	if broadcast {
		c.publish(CacheEvent{Type: CacheEventInvalidate, ProjectID: projectID})
	}
}

// ClearAll cancels every subscription and empties the cache. Safe to call repeatedly.
func (c *ProjectDataCache) ClearAll() {
	c.clear()
	c.publish(CacheEvent{Type: CacheEventClear})
}

func (c *ProjectDataCache) clear() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	c.entries.Flush()

	log.Printf("🧹 [PROJECT-CACHE] Cleared cache (%d subscriptions cancelled)", len(subs))
}

func (c *ProjectDataCache) publish(event CacheEvent) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishCacheEvent(ctx, event); err != nil {
		log.Printf("⚠️  [PROJECT-CACHE] Failed to broadcast %s event: %v", event.Type, err)
	}
}

// HandleCacheEvent applies an event received from another instance
func (c *ProjectDataCache) HandleCacheEvent(event CacheEvent) {
	switch event.Type {
	case CacheEventClear:
		c.clear()
	case CacheEventInvalidate:
		if event.ProjectID != "" {
			c.invalidate(event.ProjectID, false)
		}
	default:
		log.Printf("⚠️  [PROJECT-CACHE] Ignoring unknown cache event %q", event.Type)
	}
}

// Close stops every subscription and refuses new ones. Only the first call has effect.
func (c *ProjectDataCache) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.clear()
		log.Println("✅ [PROJECT-CACHE] Closed")
	})
}

// Stats returns entry and subscription counts
func (c *ProjectDataCache) Stats() CacheStats {
	return CacheStats{
		Entries:       c.entries.ItemCount(),
		Subscriptions: c.SubscriptionCount(),
	}
}

// SubscriptionCount returns the number of live subscriptions
func (c *ProjectDataCache) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// HasSubscription reports whether projectID has a live subscription
func (c *ProjectDataCache) HasSubscription(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[projectID]
	return ok
}

// ProjectsWithoutSubscription lists cached projects whose feed has dropped
func (c *ProjectDataCache) ProjectsWithoutSubscription() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var missing []string
	for projectID := range c.entries.Items() {
		if _, ok := c.subs[projectID]; !ok {
			missing = append(missing, projectID)
		}
	}
	sort.Strings(missing)
	return missing
}

// CompletionCounts returns done and total backlog items for a cached project
func (c *ProjectDataCache) CompletionCounts(projectID string) (done, total int, ok bool) {
	value, found := c.entries.Get(projectID)
	if !found {
		return 0, 0, false
	}
	entry := value.(*models.ProjectCacheEntry)
	done, total = CompletionStats(entry.Snapshot.BacklogItems)
	return done, total, true
}

// IsDoneStatus reports whether a backlog or task status counts as finished
func IsDoneStatus(status string) bool {
	switch strings.ToLower(status) {
	case "done", "completed", "closed":
		return true
	}
	return false
}
