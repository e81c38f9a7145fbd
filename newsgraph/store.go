// Package newsgraph serves similar-article lookups from a MongoDB
// collection of embedded articles.
package newsgraph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/finchat-labs/finflow/capability"
)

const (
	DefaultDatabase   = "finflow"
	DefaultCollection = "articles"

	// DefaultWindow bounds how far back similarity candidates reach.
	DefaultWindow = 14 * 24 * time.Hour

	// DefaultCandidates caps how many documents one lookup scans.
	DefaultCandidates = 500

	ensureIndexTimeout = 5 * time.Second
)

// articleDoc is the stored article shape. Embeddings are computed at
// ingest time; Similar never embeds.
type articleDoc struct {
	Title       string    `bson:"title"`
	URL         string    `bson:"url"`
	PublishedAt time.Time `bson:"published_at"`
	Language    string    `bson:"language"`
	Summary     string    `bson:"summary"`
	Embedding   []float32 `bson:"embedding"`
}

// Store implements the news graph capability over MongoDB. Candidates
// from a bounded recent window are ranked client side by cosine
// similarity; the collection needs no vector index.
type Store struct {
	coll       collection
	window     time.Duration
	candidates int
}

// Options configures a Store.
type Options struct {
	// Client is the connected MongoDB client. Required.
	Client *mongodriver.Client

	// Database defaults to "finflow".
	Database string

	// Collection defaults to "articles".
	Collection string

	// Window bounds the candidate fetch. Defaults to 14 days.
	Window time.Duration

	// Candidates caps one lookup's scan. Defaults to 500.
	Candidates int
}

// NewStore returns a Store over the configured collection, creating the
// publish-date index it queries by.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("newsgraph: mongo client is required")
	}
	db := opts.Database
	if db == "" {
		db = DefaultDatabase
	}
	collName := opts.Collection
	if collName == "" {
		collName = DefaultCollection
	}

	coll := mongoCollection{coll: opts.Client.Database(db).Collection(collName)}

	ctx, cancel := context.WithTimeout(context.Background(), ensureIndexTimeout)
	defer cancel()
	if err := ensureIndex(ctx, coll); err != nil {
		return nil, fmt.Errorf("newsgraph: ensure index: %w", err)
	}

	return newStoreWithCollection(coll, opts.Window, opts.Candidates), nil
}

func newStoreWithCollection(coll collection, window time.Duration, candidates int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	return &Store{coll: coll, window: window, candidates: candidates}
}

var _ capability.NewsGraph = (*Store)(nil)

// Similar returns articles closest to embedding, ordered by similarity
// descending, at most topK, all at or above minScore.
func (s *Store) Similar(ctx context.Context, embedding []float32, topK int, minScore float64) (arts []capability.Article, err error) {
	if len(embedding) == 0 {
		return nil, errors.New("newsgraph: empty embedding")
	}
	if topK <= 0 {
		return nil, nil
	}

	since := time.Now().Add(-s.window)
	cur, err := s.coll.Find(ctx,
		bson.M{"published_at": bson.M{"$gte": since}},
		options.Find().
			SetSort(bson.D{{Key: "published_at", Value: -1}}).
			SetLimit(int64(s.candidates)),
	)
	if err != nil {
		return nil, fmt.Errorf("newsgraph: find candidates: %w", err)
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	for cur.Next(ctx) {
		var doc articleDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("newsgraph: decode article: %w", err)
		}
		score := Cosine(embedding, doc.Embedding)
		if score < minScore {
			continue
		}
		arts = append(arts, capability.Article{
			Title:       doc.Title,
			URL:         doc.URL,
			PublishedAt: doc.PublishedAt,
			Language:    doc.Language,
			Summary:     doc.Summary,
			Score:       score,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("newsgraph: scan candidates: %w", err)
	}

	sort.SliceStable(arts, func(i, j int) bool { return arts[i].Score > arts[j].Score })
	if len(arts) > topK {
		arts = arts[:topK]
	}
	return arts, nil
}

// Add ingests one article with its precomputed embedding.
func (s *Store) Add(ctx context.Context, art capability.Article, embedding []float32) error {
	if art.URL == "" {
		return errors.New("newsgraph: article url is required")
	}
	if len(embedding) == 0 {
		return errors.New("newsgraph: embedding is required")
	}
	if art.PublishedAt.IsZero() {
		return errors.New("newsgraph: publish time is required")
	}

	_, err := s.coll.InsertOne(ctx, articleDoc{
		Title:       art.Title,
		URL:         art.URL,
		PublishedAt: art.PublishedAt.UTC(),
		Language:    art.Language,
		Summary:     art.Summary,
		Embedding:   append([]float32(nil), embedding...),
	})
	if err != nil {
		return fmt.Errorf("newsgraph: insert article: %w", err)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b clamped into [0,1].
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func ensureIndex(ctx context.Context, coll collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "published_at", Value: -1}},
	})
	return err
}

// collection narrows *mongo.Collection to what the store touches so
// tests can stand in for the driver.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) Indexes() indexView {
	return c.coll.Indexes()
}
