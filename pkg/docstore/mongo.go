package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoOptions configures the Mongo-backed store.
type MongoOptions struct {
	// URI is the connection string. Required.
	URI string

	// Database holds all containers as collections. Required.
	Database string

	// Timeout bounds each store operation. Defaults to 5s.
	Timeout time.Duration
}

const defaultMongoTimeout = 5 * time.Second

// MongoStore implements Store on MongoDB. Containers map to collections;
// document TTL is enforced server-side through a TTL index on the expiry
// field.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// NewMongoStore connects to MongoDB and returns the store.
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	return &MongoStore{
		client:  client,
		db:      client.Database(opts.Database),
		timeout: timeout,
	}, nil
}

// EnsureContainer opens a collection and ensures its TTL and partition
// indexes exist.
func (s *MongoStore) EnsureContainer(ctx context.Context, id, partitionField string, defaultTTL time.Duration) (Container, error) {
	coll := s.db.Collection(id)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: expiresField, Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: partitionField, Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure indexes on %s: %w", id, err)
	}

	return &mongoContainer{
		coll:           coll,
		partitionField: partitionField,
		defaultTTL:     defaultTTL,
		timeout:        s.timeout,
	}, nil
}

// Ping verifies the connection against the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoContainer struct {
	coll           *mongo.Collection
	partitionField string
	defaultTTL     time.Duration
	timeout        time.Duration
}

func (c *mongoContainer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *mongoContainer) Upsert(ctx context.Context, doc Document) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return errors.New("document id is required")
	}
	partition, _ := doc[c.partitionField].(string)
	if partition == "" {
		return fmt.Errorf("document %s is required", c.partitionField)
	}

	stored := bson.M{"_id": id}
	for k, v := range doc {
		stored[k] = v
	}
	if ttl := documentTTL(doc, c.defaultTTL); ttl > 0 {
		stored[expiresField] = time.Now().Add(ttl).UTC()
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.coll.ReplaceOne(ctx,
		bson.M{"_id": id, c.partitionField: partition},
		stored,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	return nil
}

func (c *mongoContainer) Read(ctx context.Context, id, partition string) (Document, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var doc bson.M
	err := c.coll.FindOne(ctx, bson.M{"_id": id, c.partitionField: partition}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return cleanDocument(doc), nil
}

func (c *mongoContainer) Delete(ctx context.Context, id, partition string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.coll.DeleteOne(ctx, bson.M{"_id": id, c.partitionField: partition})
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

func (c *mongoContainer) Query(ctx context.Context, filter map[string]any, crossPartition bool) ([]Document, error) {
	if !crossPartition {
		if _, ok := filter[c.partitionField]; !ok {
			return nil, fmt.Errorf("filter must include %s unless cross-partition", c.partitionField)
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cursor, err := c.coll.Find(ctx, bson.M(filter))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("query decode failed: %w", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, cleanDocument(d))
	}
	return docs, nil
}

// cleanDocument strips storage-internal fields before handing the document
// back to the caller.
func cleanDocument(doc bson.M) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == "_id" || k == expiresField {
			continue
		}
		out[k] = v
	}
	return out
}

var _ Store = (*MongoStore)(nil)
