package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"outcode-retriever/models"
	"outcode-retriever/utils"
)

// MongoStore persists properties to MongoDB, one collection per listing kind.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *utils.Logger
}

// NewMongoStore connects to uri and waits for the server to answer a ping.
func NewMongoStore(ctx context.Context, uri, database string, logger *utils.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	for i := 0; i < 10; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx, nil)
		cancel()
		if err == nil {
			break
		}
		if logger != nil {
			logger.Warn("[mongo] Ping failed (attempt %d/10): %v", i+1, err)
		}
		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping failed after retries: %w", err)
	}

	if logger != nil {
		logger.Info("[mongo] Connected to database %q", database)
	}
	return &MongoStore{client: client, db: client.Database(database), logger: logger}, nil
}

// InsertMany writes one page of properties as a single batch and returns
// the generated ids as hex strings.
func (s *MongoStore) InsertMany(ctx context.Context, kind models.ListingKind, props []*models.Property) ([]string, error) {
	if len(props) == 0 {
		return nil, nil
	}

	docs := make([]interface{}, 0, len(props))
	for _, p := range props {
		docs = append(docs, p)
	}

	res, err := s.db.Collection(kind.Collection()).InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("mongo: insert into %s: %w", kind.Collection(), err)
	}

	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		if oid, ok := id.(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
		} else {
			ids = append(ids, fmt.Sprint(id))
		}
	}
	return ids, nil
}

// Count returns the number of documents stored for kind, optionally limited
// to one outcode.
func (s *MongoStore) Count(ctx context.Context, kind models.ListingKind, outcode int) (int64, error) {
	filter := bson.D{}
	if outcode > 0 {
		filter = bson.D{{Key: "__retrieval_meta.outcode", Value: outcode}}
	}
	n, err := s.db.Collection(kind.Collection()).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: count %s: %w", kind.Collection(), err)
	}
	return n, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
