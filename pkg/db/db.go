package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

// MongoConfig names the database and collections used by Client.
type MongoConfig struct {
	URI                string
	Database           string
	BundleCollection   string
	ChunkCollection    string
	QuestionCollection string
	StatusCollection   string
	VectorIndex        string
	NumCandidates      int
}

// Client wraps the MongoDB client and the pipeline collections
type Client struct {
	mongoClient *mongo.Client
	database    *mongo.Database
	bundles     *mongo.Collection
	chunks      *mongo.Collection
	questions   *mongo.Collection
	statuses    *mongo.Collection

	vectorIndex   string
	numCandidates int
}

var _ Store = (*Client)(nil)

// bundleDocument is the stored shape of a bundle; ids are ObjectIDs.
type bundleDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	GuestName         string             `bson:"guestName"`
	Company           string             `bson:"company"`
	Topic             string             `bson:"topic"`
	Context           string             `bson:"context"`
	URLs              []string           `bson:"urls"`
	Processed         bool               `bson:"processed"`
	ResearchBriefText string             `bson:"researchBriefText,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt"`
}

func (d bundleDocument) toDomain() domain.ResearchBundle {
	return domain.ResearchBundle{
		ID:                d.ID.Hex(),
		GuestName:         d.GuestName,
		Company:           d.Company,
		Topic:             d.Topic,
		Context:           d.Context,
		URLs:              d.URLs,
		Processed:         d.Processed,
		ResearchBriefText: d.ResearchBriefText,
		CreatedAt:         d.CreatedAt,
	}
}

// NewClient creates a new database client. The connection is lazy; call Connect to verify it.
func NewClient(ctx context.Context, cfg MongoConfig) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	database := mongoClient.Database(cfg.Database)
	numCandidates := cfg.NumCandidates
	if numCandidates <= 0 {
		numCandidates = 150
	}
	return &Client{
		mongoClient:   mongoClient,
		database:      database,
		bundles:       database.Collection(cfg.BundleCollection),
		chunks:        database.Collection(cfg.ChunkCollection),
		questions:     database.Collection(cfg.QuestionCollection),
		statuses:      database.Collection(cfg.StatusCollection),
		vectorIndex:   cfg.VectorIndex,
		numCandidates: numCandidates,
	}, nil
}

// Connect verifies the connection to MongoDB
func (c *Client) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return c.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

// CreateBundle inserts a new unprocessed bundle and returns its id.
func (c *Client) CreateBundle(ctx context.Context, b *domain.ResearchBundle) (string, error) {
	doc := bundleDocument{
		GuestName: b.GuestName,
		Company:   b.Company,
		Topic:     b.Topic,
		Context:   b.Context,
		URLs:      b.URLs,
		CreatedAt: b.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	res, err := c.bundles.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert bundle: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert bundle: unexpected id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// GetBundle loads one bundle by its hex id.
func (c *Client) GetBundle(ctx context.Context, id string) (*domain.ResearchBundle, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}

	var doc bundleDocument
	err = c.bundles.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find bundle %s: %w", id, err)
	}
	b := doc.toDomain()
	return &b, nil
}

// SaveBrief stores the brief only if the bundle is not processed yet.
func (c *Client) SaveBrief(ctx context.Context, id, brief string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}

	filter := bson.M{"_id": oid, "processed": bson.M{"$ne": true}}
	update := bson.M{"$set": bson.M{"researchBriefText": brief, "processed": true}}
	res, err := c.bundles.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update bundle %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := c.bundles.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("count bundle %s: %w", id, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, id)
	}
	return fmt.Errorf("%w: %s", ErrBundleNotFound, id)
}

// ListProcessedBundles returns every bundle that has a brief.
func (c *Client) ListProcessedBundles(ctx context.Context) ([]domain.ResearchBundle, error) {
	cursor, err := c.bundles.Find(ctx, bson.M{"processed": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query bundles: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.ResearchBundle
	for cursor.Next(ctx) {
		var doc bundleDocument
		if err := cursor.Decode(&doc); err != nil {
			continue // Skip invalid documents
		}
		out = append(out, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

// SaveChunks appends chunk records. Records are never updated.
func (c *Client) SaveChunks(ctx context.Context, chunks []domain.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		docs[i] = chunks[i]
	}
	if _, err := c.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// CountChunks returns how many chunk records a bundle has.
func (c *Client) CountChunks(ctx context.Context, bundleID string) (int, error) {
	n, err := c.chunks.CountDocuments(ctx, bson.M{"bundleId": bundleID})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return int(n), nil
}

// SearchChunks runs an Atlas $vectorSearch restricted to one bundle. The index must
// declare bundleId as a filter field.
func (c *Client) SearchChunks(ctx context.Context, bundleID string, query []float32, k int) ([]domain.ScoredChunk, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: c.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: query},
			{Key: "numCandidates", Value: max(c.numCandidates, k)},
			{Key: "limit", Value: k},
			{Key: "filter", Value: bson.D{{Key: "bundleId", Value: bundleID}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "text", Value: 1},
			{Key: "bundleId", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := c.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.ScoredChunk
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode vector search: %w", err)
	}
	return out, nil
}

// GetQuestions returns the mined question records for a bundle.
func (c *Client) GetQuestions(ctx context.Context, bundleID string) ([]domain.CandidateQuestion, error) {
	cursor, err := c.questions.Find(ctx, bson.M{"bundleId": bundleID})
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.CandidateQuestion
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return out, nil
}

// SaveStatus upserts the ingestion status of a bundle.
func (c *Client) SaveStatus(ctx context.Context, status *domain.IngestionStatus) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := c.statuses.ReplaceOne(ctx, bson.M{"_id": status.BundleID}, status, opts); err != nil {
		return fmt.Errorf("save ingestion status: %w", err)
	}
	return nil
}

// GetStatus loads the ingestion status of a bundle.
func (c *Client) GetStatus(ctx context.Context, bundleID string) (*domain.IngestionStatus, error) {
	var status domain.IngestionStatus
	err := c.statuses.FindOne(ctx, bson.M{"_id": bundleID}).Decode(&status)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, bundleID)
	}
	if err != nil {
		return nil, fmt.Errorf("find ingestion status: %w", err)
	}
	return &status, nil
}
