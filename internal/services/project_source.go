package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"projectpilot/internal/database"
	"projectpilot/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// ChangeListener receives notifications for one project subscription.
// OnChange fires on any modification to the project aggregate, OnError
// when the underlying feed fails and the subscription is no longer live.
type ChangeListener struct {
	OnChange func()
	OnError  func(error)
}

// ProjectSource reads project aggregates and streams change notifications
type ProjectSource interface {
	// LoadProject reads the full aggregate. Returns ErrProjectNotFound when
	// the project document does not exist.
	LoadProject(ctx context.Context, projectID string) (*models.ProjectSnapshot, error)

	// Watch opens a change subscription for projectID. The returned cancel
	// func stops the subscription and is safe to call more than once.
	Watch(projectID string, listener ChangeListener) (cancel func(), err error)
}

// MongoProjectSource reads project aggregates from MongoDB and watches them
// through a database-level change stream
type MongoProjectSource struct {
	mongoDB *database.MongoDB
}

// NewMongoProjectSource creates a Mongo-backed project source
func NewMongoProjectSource(mongoDB *database.MongoDB) *MongoProjectSource {
	return &MongoProjectSource{mongoDB: mongoDB}
}

// LoadProject reads the project document and its child collections in parallel
func (s *MongoProjectSource) LoadProject(ctx context.Context, projectID string) (*models.ProjectSnapshot, error) {
	snapshot := &models.ProjectSnapshot{}

	err := s.mongoDB.Collection(database.CollectionProjects).
		FindOne(ctx, bson.M{"_id": projectID}).
		Decode(&snapshot.Project)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	filter := bson.M{"projectId": projectID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return findAll(gctx, s.mongoDB.Collection(database.CollectionProjectMembers), filter, &snapshot.Members)
	})
	g.Go(func() error {
		return findAll(gctx, s.mongoDB.Collection(database.CollectionBacklogItems), filter, &snapshot.BacklogItems)
	})
	g.Go(func() error {
		return findAll(gctx, s.mongoDB.Collection(database.CollectionProjectRoles), filter, &snapshot.ProjectRoles)
	})
	g.Go(func() error {
		// Permissions are global, not project-scoped
		return findAll(gctx, s.mongoDB.Collection(database.CollectionPermissions), bson.M{}, &snapshot.AvailablePermissions)
	})
	g.Go(func() error {
		return findAll(gctx, s.mongoDB.Collection(database.CollectionSprints), filter, &snapshot.Sprints)
	})
	g.Go(func() error {
		return findAll(gctx, s.mongoDB.Collection(database.CollectionTasks), filter, &snapshot.Tasks)
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}

	return snapshot, nil
}

func findAll(ctx context.Context, collection *mongo.Collection, filter bson.M, out interface{}) error {
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("find %s: %w", collection.Name(), err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", collection.Name(), err)
	}
	return nil
}

// changeStreamPipeline matches any write touching the project document or a
// child document that carries the project's id
func changeStreamPipeline(projectID string) mongo.Pipeline {
	scoped := bson.A{}
	for _, name := range database.ProjectScopedCollections {
		scoped = append(scoped, name)
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or": bson.A{
				bson.M{
					"ns.coll":         database.CollectionProjects,
					"documentKey._id": projectID,
				},
				bson.M{
					"ns.coll":                bson.M{"$in": scoped},
					"fullDocument.projectId": projectID,
				},
			},
		}}},
	}
}

// Watch opens a change stream for projectID. The stream is consumed on its
// own goroutine until cancel is called or the stream fails.
func (s *MongoProjectSource) Watch(projectID string, listener ChangeListener) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.mongoDB.Database().Watch(ctx, changeStreamPipeline(projectID), opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream for project %s: %w", projectID, err)
	}

	go func() {
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			if listener.OnChange != nil {
				listener.OnChange()
			}
		}

		if ctx.Err() != nil {
			// Cancelled by the subscriber
			return
		}

		streamErr := stream.Err()
		if streamErr == nil {
			streamErr = errors.New("change stream closed")
		}
		log.Printf("⚠️  [PROJECT-SOURCE] Change stream for project %s ended: %v", projectID, streamErr)
		if listener.OnError != nil {
			listener.OnError(streamErr)
		}
	}()

	return cancel, nil
}
