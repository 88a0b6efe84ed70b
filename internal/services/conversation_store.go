package services

import (
	"context"
	"errors"
	"fmt"
	"projectpilot/internal/database"
	"projectpilot/internal/models"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationStore persists the single assistant thread per (user, project)
type ConversationStore interface {
	// GetOrCreate returns the conversation for the pair, creating it on first contact
	GetOrCreate(ctx context.Context, userID, projectID string) (*models.Conversation, error)

	// AppendMessage appends msg and applies patch to the metadata in one write
	AppendMessage(ctx context.Context, conversationID string, msg models.Message, patch *models.PreferencePatch) error

	// GetRecentHistory returns at most limit messages, oldest first
	GetRecentHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// Find returns the conversation for the pair or ErrConversationNotFound
	Find(ctx context.Context, userID, projectID string) (*models.Conversation, error)
}

// MongoConversationStore stores conversations in the assistant_conversations collection
type MongoConversationStore struct {
	mongoDB *database.MongoDB
}

// NewMongoConversationStore creates a Mongo-backed conversation store
func NewMongoConversationStore(mongoDB *database.MongoDB) *MongoConversationStore {
	return &MongoConversationStore{mongoDB: mongoDB}
}

func (s *MongoConversationStore) collection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionAssistantConversations)
}

// GetOrCreate upserts the conversation. Two first-contact requests racing on
// the unique (userId, projectId) index make one of them retry as a read.
func (s *MongoConversationStore) GetOrCreate(ctx context.Context, userID, projectID string) (*models.Conversation, error) {
	filter := bson.M{"userId": userID, "projectId": projectID}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"messages": 0})

	for attempt := 0; ; attempt++ {
		now := time.Now()
		update := bson.M{
			"$setOnInsert": bson.M{
				"_id":          uuid.New().String(),
				"userId":       userID,
				"projectId":    projectID,
				"metadata":     models.ConversationMetadata{},
				"messages":     bson.A{},
				"messageCount": 0,
				"createdAt":    now,
				"updatedAt":    now,
			},
		}

		var conv models.Conversation
		err := s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
		if err == nil {
			return &conv, nil
		}
		if mongo.IsDuplicateKeyError(err) && attempt == 0 {
			continue
		}
		return nil, fmt.Errorf("failed to get or create conversation: %w", err)
	}
}

// AppendMessage pushes msg, bumps the message count and applies patch
func (s *MongoConversationStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message, patch *models.PreferencePatch) error {
	set := bson.M{"updatedAt": time.Now()}
	for path, value := range PatchFields(patch) {
		set[path] = value
	}

	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$inc":  bson.M{"messageCount": 1},
		"$set":  set,
	}

	result, err := s.collection().UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// GetRecentHistory reads the tail of the messages array
func (s *MongoConversationStore) GetRecentHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}

	var doc struct {
		Messages []models.Message `bson:"messages"`
	}
	opts := options.FindOne().SetProjection(bson.M{"messages": bson.M{"$slice": -limit}})
	err := s.collection().FindOne(ctx, bson.M{"_id": conversationID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	if doc.Messages == nil {
		return []models.Message{}, nil
	}
	return doc.Messages, nil
}

// Find returns the conversation without its messages
func (s *MongoConversationStore) Find(ctx context.Context, userID, projectID string) (*models.Conversation, error) {
	var conv models.Conversation
	opts := options.FindOne().SetProjection(bson.M{"messages": 0})
	err := s.collection().FindOne(ctx, bson.M{"userId": userID, "projectId": projectID}, opts).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}
