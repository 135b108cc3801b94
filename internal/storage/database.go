package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// mongoBook is the stored document: one record tagged with its checkpoint.
type mongoBook struct {
	Checkpoint       string    `bson:"checkpoint"`
	StoredAt         time.Time `bson:"stored_at"`
	types.BookRecord `bson:",inline"`
}

// MongoStorage writes records to a MongoDB collection. Each checkpoint
// replaces the documents previously stored under the same checkpoint name.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	checkpoint string
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend for one checkpoint.
func NewMongoStorage(cfg config.MongoConfig, checkpoint string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	res, err := collection.DeleteMany(ctx, bson.M{"checkpoint": checkpoint})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb clear checkpoint %q: %w", checkpoint, err)
	}

	s := &MongoStorage{
		client:     client,
		collection: collection,
		checkpoint: checkpoint,
		logger:     logger.With("component", "mongo_storage"),
	}
	s.logger.Debug("previous checkpoint cleared", "checkpoint", checkpoint, "deleted", res.DeletedCount)
	return s, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(records []types.BookRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	docs := make([]any, len(records))
	for i, rec := range records {
		if rec.Authors == nil {
			rec.Authors = []string{}
		}
		docs[i] = mongoBook{
			Checkpoint: s.checkpoint,
			StoredAt:   now,
			BookRecord: rec,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records stored in mongodb", "count", len(records), "total", s.count)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "checkpoint", s.checkpoint, "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes records to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(records []types.BookRecord) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			s.logger.Error("backend close failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
		}
	}
	return firstErr
}
