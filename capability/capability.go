// Package capability defines the narrow collaborator interfaces the
// workflow consumes: language model, market data, symbol lookup, semantic
// index, news graph and feed, translation, and chart rendering.
//
// The orchestrator depends only on these interfaces. Production adapters
// live in their own packages (llm, marketdata, vector, newsgraph, newsfeed,
// charts, symbols); the fakes in this package back the tests and the
// quickstart example. Any implementation satisfying an interface is
// acceptable.
package capability

import (
	"context"
	"errors"
	"time"
)

// Prompt is one completion request to a language model.
type Prompt struct {
	// System sets the model's role and output contract.
	System string

	// User is the task input.
	User string

	// Temperature controls sampling. 0 keeps structured outputs parseable.
	Temperature float64

	// MaxTokens bounds the completion length. 0 lets the provider decide.
	MaxTokens int
}

// Usage counts tokens consumed by one completion.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Completion is a language model's answer to a Prompt.
type Completion struct {
	Text  string
	Usage Usage
}

// LanguageModel produces text completions. Implementations report failures
// through Fault so callers can distinguish retryable from permanent errors.
type LanguageModel interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

// Symbol is a resolved instrument: exchange code plus display name.
type Symbol struct {
	// Code is the exchange listing code, e.g. "005930".
	Code string

	// Name is the display name, e.g. "삼성전자".
	Name string
}

// SymbolLookup resolves free-text company references to symbols. The bool
// reports whether anything matched; an error means the lookup itself failed.
type SymbolLookup interface {
	Resolve(ctx context.Context, text string) (Symbol, bool, error)
}

// Quote is a point-in-time market snapshot for one symbol.
type Quote struct {
	Price     float64
	ChangePct float64
	Volume    int64
	PER       float64
	PBR       float64
	ROE       float64
	MarketCap float64
	Sector    string
}

// MarketData serves quotes. A quote for a symbol the venue does not list
// fails with ErrSymbolUnlisted; infrastructure trouble surfaces as a Fault.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Hit is one semantic index match.
type Hit struct {
	// Source names where the snippet came from (document ID, URL, title).
	Source string

	// Score is the similarity in [0,1], higher is closer.
	Score float64

	// Snippet is the matched passage.
	Snippet string
}

// SemanticIndex searches a document index by meaning. Results are ordered
// by score descending, at most topK, all at or above minScore.
type SemanticIndex interface {
	Search(ctx context.Context, text string, topK int, minScore float64) ([]Hit, error)
}

// Embedder turns text into a vector for similarity search. NewsGraph
// consumes embeddings rather than raw text, so some Embedder must sit in
// front of it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Article is a news item from the article graph.
type Article struct {
	Title       string
	URL         string
	PublishedAt time.Time
	Language    string
	Summary     string

	// Score is the similarity to the query embedding in [0,1].
	Score float64
}

// NewsGraph finds articles similar to an embedding.
type NewsGraph interface {
	Similar(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Article, error)
}

// FeedItem is a news item from an external feed.
type FeedItem struct {
	Title       string
	URL         string
	PublishedAt time.Time
	Language    string
	Body        string
}

// NewsFeed fetches fresh news for keywords, at most limit items.
type NewsFeed interface {
	Fetch(ctx context.Context, keywords []string, limit int) ([]FeedItem, error)
}

// Translator translates text into the target language (IETF code, "ko").
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Pricebar is one OHLCV bar in a chart series.
type Pricebar struct {
	T      time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series is the data behind one chart.
type Series struct {
	Label string
	Bars  []Pricebar
}

// ChartKind selects the rendering style.
type ChartKind string

const (
	ChartLine        ChartKind = "line"
	ChartBar         ChartKind = "bar"
	ChartCandlestick ChartKind = "candlestick"
)

// ChartRenderer renders a series to PNG bytes. Bad input (too few bars,
// unknown kind) is an error, never a panic.
type ChartRenderer interface {
	Render(ctx context.Context, series Series, kind ChartKind) ([]byte, error)
}

// Caps bundles one implementation of each capability for injection at
// request entry. The workflow holds no singletons; everything it talks to
// arrives through a Caps value.
type Caps struct {
	LM         LanguageModel
	Symbols    SymbolLookup
	Market     MarketData
	Index      SemanticIndex
	Embedder   Embedder
	NewsGraph  NewsGraph
	NewsFeed   NewsFeed
	Translator Translator
	Charts     ChartRenderer
}

// Validate reports the first missing capability. Callers that never
// exercise a capability still wire one (a fake will do); agents then need
// no nil checks.
func (c Caps) Validate() error {
	switch {
	case c.LM == nil:
		return errors.New("capability: LanguageModel is required")
	case c.Symbols == nil:
		return errors.New("capability: SymbolLookup is required")
	case c.Market == nil:
		return errors.New("capability: MarketData is required")
	case c.Index == nil:
		return errors.New("capability: SemanticIndex is required")
	case c.Embedder == nil:
		return errors.New("capability: Embedder is required")
	case c.NewsGraph == nil:
		return errors.New("capability: NewsGraph is required")
	case c.NewsFeed == nil:
		return errors.New("capability: NewsFeed is required")
	case c.Translator == nil:
		return errors.New("capability: Translator is required")
	case c.Charts == nil:
		return errors.New("capability: ChartRenderer is required")
	}
	return nil
}
