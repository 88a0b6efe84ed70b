package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// CacheEventsChannel carries project cache events between instances
const CacheEventsChannel = "assistant:cache:events"

// CacheEventHandler applies a cache event received from another instance
type CacheEventHandler interface {
	HandleCacheEvent(event CacheEvent)
}

// PubSubService broadcasts project cache events over Redis so every
// instance clears or invalidates the same state
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handler    CacheEventHandler
	instanceID string

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewPubSubService creates the event bus for one instance
func NewPubSubService(redisService *RedisService, instanceID string, handler CacheEventHandler) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		handler:    handler,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start subscribes to the cache event channel
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.Client().Subscribe(s.ctx, CacheEventsChannel)

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		s.pubsub.Close()
		s.pubsub = nil
		return fmt.Errorf("failed to subscribe to %s: %w", CacheEventsChannel, err)
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Listening for cache events (instance: %s)", s.instanceID)
	return nil
}

func (s *PubSubService) processMessages() {
	defer close(s.done)
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handlePayload(msg.Payload)
		}
	}
}

// handlePayload decodes one message and applies it unless this instance sent it
func (s *PubSubService) handlePayload(payload string) {
	var event CacheEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal cache event: %v", err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if event.Origin == s.instanceID {
		return
	}

	log.Printf("📡 [PUBSUB] Received %s event from %s", event.Type, event.Origin)
	s.handler.HandleCacheEvent(event)
}

// PublishCacheEvent broadcasts event to every other instance
func (s *PubSubService) PublishCacheEvent(ctx context.Context, event CacheEvent) error {
	event.Origin = s.instanceID

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.redis.Client().Publish(ctx, CacheEventsChannel, data).Err()
}

// Stop unsubscribes. Safe to call more than once.
func (s *PubSubService) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		if s.pubsub != nil {
			err = s.pubsub.Close()
			<-s.done
		}
	})
	return err
}
