package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// defaultDatabase is used when neither the URI path nor MONGODB_DATABASE names one
const defaultDatabase = "projectpilot"

// Collection names
const (
	// Project aggregate collections, written by the project-management API
	CollectionProjects       = "projects"
	CollectionProjectMembers = "project_members"
	CollectionBacklogItems   = "backlog_items"
	CollectionProjectRoles   = "project_roles"
	CollectionPermissions    = "permissions"
	CollectionSprints        = "sprints"
	CollectionTasks          = "tasks"

	// Owned by the assistant
	CollectionAssistantConversations = "assistant_conversations"
)

// ProjectScopedCollections hold child documents carrying a projectId field
var ProjectScopedCollections = []string{
	CollectionProjectMembers,
	CollectionBacklogItems,
	CollectionProjectRoles,
	CollectionSprints,
	CollectionTasks,
}

// MongoDB holds the client and the database the assistant reads and writes
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB connects and selects dbName, falling back to the database in the URI path.
// Every live project subscription holds a change stream cursor, so the pool is sized
// for many long-lived connections.
func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetAppName("projectpilot-assistant").
		SetMaxPoolSize(200).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return &MongoDB{
		client:   client,
		database: client.Database(dbName),
	}, nil
}

// databaseFromURI reads the database from the URI path:
// mongodb://localhost:27017/pm?authSource=admin -> pm
func databaseFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.Trim(parsed.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

// Initialize creates the lookup indexes the assistant depends on
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 [MONGODB] Ensuring indexes...")

	for _, name := range ProjectScopedCollections {
		if err := m.createIndexes(ctx, name, []mongo.IndexModel{
			{Keys: bson.D{{Key: "projectId", Value: 1}}},
		}); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}

	// One conversation per (user, project); upserts rely on this for first-contact races
	if err := m.createIndexes(ctx, CollectionAssistantConversations, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "projectId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "updatedAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create assistant_conversations indexes: %w", err)
	}

	log.Printf("✅ [MONGODB] Indexes ready on %d collections", len(ProjectScopedCollections)+1)
	return nil
}

func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	_, err := m.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a handle in the assistant database
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Database returns the database, used for database-wide change streams
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close disconnects the client, ending every open change stream
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 [MONGODB] Disconnecting")
	return m.client.Disconnect(ctx)
}

// Ping checks the primary is reachable
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
