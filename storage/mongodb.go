package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnwmail/pasties/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements PasteStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore connects to MongoDB and prepares the pastes collection
func NewMongoStore(uri, dbName, collection string, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(collection),
		logger:     logger,
	}

	if err := store.createIndexes(); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("mongodb storage ready",
		zap.String("database", dbName),
		zap.String("collection", collection))
	return store, nil
}

// createIndexes creates necessary indexes for the collection
func (m *MongoStore) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date_published", Value: -1}}},
		{Keys: bson.D{{Key: "metadata.owner", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create mongodb indexes: %w", err)
	}
	return nil
}

func translateMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrAlreadyExists
	default:
		return err
	}
}

// Create inserts a paste
func (m *MongoStore) Create(ctx context.Context, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := m.collection.InsertOne(ctx, paste)
	return translateMongoError(err)
}

// GetByURL retrieves a paste by URL
func (m *MongoStore) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var paste models.Paste
	if err := m.collection.FindOne(ctx, bson.M{"url": url}).Decode(&paste); err != nil {
		return nil, translateMongoError(err)
	}
	return &paste, nil
}

// Exists reports whether url is taken
func (m *MongoStore) Exists(ctx context.Context, url string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := m.collection.CountDocuments(ctx, bson.M{"url": url}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update replaces the document stored under oldURL, keeping its _id
func (m *MongoStore) Update(ctx context.Context, oldURL string, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.UpdateOne(ctx, bson.M{"url": oldURL}, bson.M{
		"$set": bson.M{
			"url":         paste.URL,
			"content":     paste.Content,
			"password":    paste.Password,
			"date_edited": paste.DateEdited,
			"expires_at":  paste.ExpiresAt,
			"views":       paste.Views,
			"metadata":    paste.Metadata,
		},
	})
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a paste
func (m *MongoStore) Delete(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"url": url})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews increments the view counter atomically
func (m *MongoStore) IncrementViews(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{"$inc": bson.M{"views": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// listFilter translates ListOptions into a query document
func listFilter(opts models.ListOptions) bson.M {
	filter := bson.M{}
	if opts.Owner != "" {
		filter["metadata.owner"] = opts.Owner
	}
	if !opts.IncludeProtected {
		filter["metadata.view_password"] = ""
	}
	if opts.ActiveAt > 0 {
		filter["$or"] = bson.A{
			bson.M{"expires_at": 0},
			bson.M{"expires_at": bson.M{"$gt": opts.ActiveAt}},
		}
	}
	return filter
}

// List returns pastes newest first
func (m *MongoStore) List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{
		{Key: "date_published", Value: -1},
		{Key: "url", Value: 1},
	})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := m.collection.Find(ctx, listFilter(opts), findOpts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	pastes := []*models.Paste{}
	if err := cur.All(ctx, &pastes); err != nil {
		return nil, err
	}
	return pastes, nil
}

// DeleteExpired removes expired pastes
func (m *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$gt": 0, "$lte": now.Unix()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Ping checks the connection
func (m *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return m.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return m.client.Disconnect(ctx)
}
