// Package vector implements semantic search over a Milvus collection.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/finchat-labs/finflow/capability"
)

const (
	DefaultCollection = "finflow_docs"

	// DefaultEF is the HNSW search breadth.
	DefaultEF = 64

	vectorField  = "embedding"
	sourceField  = "source"
	snippetField = "snippet"
)

// Index implements the semantic index capability on Milvus. Queries go
// through the embedder, then ANN search; hits below minScore are
// dropped. The collection's metric must be COSINE so scores land in
// [0,1].
type Index struct {
	embedder   capability.Embedder
	client     annClient
	collection string
	ef         int
	expr       string
}

// Option adjusts an Index.
type Option func(*Index)

// WithCollection overrides the searched collection.
func WithCollection(name string) Option {
	return func(x *Index) {
		if name != "" {
			x.collection = name
		}
	}
}

// WithEF overrides the HNSW search breadth.
func WithEF(ef int) Option {
	return func(x *Index) {
		if ef > 0 {
			x.ef = ef
		}
	}
}

// WithFilter applies a Milvus boolean expression to every search, for
// example `lang == "ko"`.
func WithFilter(expr string) Option {
	return func(x *Index) {
		x.expr = expr
	}
}

// NewIndex connects to Milvus at addr and searches with embedder.
func NewIndex(ctx context.Context, addr string, embedder capability.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("vector: embedder is required")
	}
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("vector: connect %s: %w", addr, err)
	}
	return newIndexWithClient(sdkClient{cli: cli}, embedder, opts...), nil
}

func newIndexWithClient(cli annClient, embedder capability.Embedder, opts ...Option) *Index {
	x := &Index{
		embedder:   embedder,
		client:     cli,
		collection: DefaultCollection,
		ef:         DefaultEF,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

var _ capability.SemanticIndex = (*Index)(nil)

// Search embeds text and returns the closest snippets, ordered by score
// descending, at most topK, all at or above minScore.
func (x *Index) Search(ctx context.Context, text string, topK int, minScore float64) ([]capability.Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("vector: empty query")
	}
	if topK <= 0 {
		return nil, nil
	}

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}

	results, err := x.client.Search(ctx, x.collection, vec, topK, x.expr, x.ef)
	if err != nil {
		return nil, fmt.Errorf("vector: search %s: %w", x.collection, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	var hits []capability.Hit
	for i := 0; i < rs.ResultCount; i++ {
		hit := capability.Hit{Score: float64(rs.Scores[i])}
		for _, field := range rs.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case sourceField:
				hit.Source = col.Data()[i]
			case snippetField:
				hit.Snippet = col.Data()[i]
			}
		}
		if hit.Score < minScore {
			continue
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Close releases the Milvus connection.
func (x *Index) Close(ctx context.Context) error {
	return x.client.Close(ctx)
}

// annClient narrows the Milvus SDK to what the index uses so tests can
// stand in for it.
type annClient interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, expr string, ef int) ([]milvusclient.ResultSet, error)
	Close(ctx context.Context) error
}

type sdkClient struct {
	cli *milvusclient.Client
}

func (s sdkClient) Search(ctx context.Context, collection string, vector []float32, topK int, expr string, ef int) ([]milvusclient.ResultSet, error) {
	loadTask, err := s.cli.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("await collection load: %w", err)
	}

	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(vectorField).
		WithSearchParam("ef", strconv.Itoa(ef)).
		WithOutputFields(sourceField, snippetField)
	if expr != "" {
		opt = opt.WithFilter(expr)
	}
	return s.cli.Search(ctx, opt)
}

func (s sdkClient) Close(ctx context.Context) error {
	return s.cli.Close(ctx)
}
