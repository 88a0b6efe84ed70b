package services

import (
	"context"
	"projectpilot/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryConversationStore keeps conversations in process memory.
// Used when no document store is configured and by tests.
type MemoryConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
	byPair        map[string]string
}

// NewMemoryConversationStore creates an empty in-memory store
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		byPair:        make(map[string]string),
	}
}

func pairKey(userID, projectID string) string {
	return userID + "\x00" + projectID
}

func (s *MemoryConversationStore) GetOrCreate(ctx context.Context, userID, projectID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPair[pairKey(userID, projectID)]; ok {
		conv := *s.conversations[id]
		return &conv, nil
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = nil
	s.byPair[pairKey(userID, projectID)] = conv.ID

	out := *conv
	return &out, nil
}

func (s *MemoryConversationStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message, patch *models.PreferencePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.MessageCount++
	conv.Metadata = MergePreferences(conv.Metadata, patch)
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryConversationStore) GetRecentHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	if limit <= 0 {
		return []models.Message{}, nil
	}

	all := s.messages[conversationID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}
	return append([]models.Message{}, all[start:]...), nil
}

func (s *MemoryConversationStore) Find(ctx context.Context, userID, projectID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPair[pairKey(userID, projectID)]
	if !ok {
		return nil, ErrConversationNotFound
	}
	conv := *s.conversations[id]
	return &conv, nil
}
