package capability

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Fakes for every capability. They power the workflow tests and the
// quickstart example: scripted responses, error injection, optional
// per-call delay, and call capture, all safe for concurrent use.
//
// Example:
//
//	lm := &FakeLM{Completions: []Completion{{Text: "intent: data"}}}
//	market := &FakeMarket{Quotes: map[string]Quote{"005930": {Price: 71500}}}
//	caps := Caps{LM: lm, Market: market, ...}

// FakeLM is a scripted LanguageModel.
//
// Reply, when set, routes each prompt to a completion and wins over the
// queue; parallel agents hit the model in nondeterministic order, so tests
// with concurrency script by content rather than by position. Without
// Reply, completions are served in order and the last one repeats.
type FakeLM struct {
	// Reply computes the completion for a prompt. Optional.
	Reply func(prompt Prompt) (Completion, error)

	// Completions is the response queue used when Reply is nil.
	Completions []Completion

	// Err, when set, fails every call.
	Err error

	// Delay is slept before responding, honoring ctx.
	Delay time.Duration

	// Calls records every prompt received.
	Calls []Prompt

	mu    sync.Mutex
	index int
}

func (f *FakeLM) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	if err := sleepFor(ctx, f.Delay); err != nil {
		return Completion{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, prompt)

	if f.Err != nil {
		return Completion{}, f.Err
	}
	if f.Reply != nil {
		return f.Reply(prompt)
	}
	if len(f.Completions) == 0 {
		return Completion{}, nil
	}

	idx := f.index
	if idx >= len(f.Completions) {
		idx = len(f.Completions) - 1
	} else {
		f.index++
	}
	return f.Completions[idx], nil
}

// CallCount returns how many prompts the fake has received.
func (f *FakeLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Reset clears the call history and rewinds the queue.
func (f *FakeLM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.index = 0
}

// FakeSymbols resolves names by substring match against Table, the same
// contains-matching the production table does, so "삼성전자 주가 알려줘"
// resolves through the key "삼성전자".
type FakeSymbols struct {
	Table map[string]Symbol
	Err   error

	mu    sync.Mutex
	Calls []string
}

func (f *FakeSymbols) Resolve(ctx context.Context, text string) (Symbol, bool, error) {
	if err := ctx.Err(); err != nil {
		return Symbol{}, false, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, text)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return Symbol{}, false, err
	}
	for name, sym := range f.Table {
		if strings.Contains(text, name) {
			return sym, true, nil
		}
	}
	return Symbol{}, false, nil
}

// FakeMarket serves quotes from a map. Symbols absent from Quotes fail
// with ErrSymbolUnlisted; Err overrides everything.
type FakeMarket struct {
	Quotes map[string]Quote
	Err    error
	Delay  time.Duration

	mu    sync.Mutex
	Calls []string
}

func (f *FakeMarket) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := sleepFor(ctx, f.Delay); err != nil {
		return Quote{}, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, symbol)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return Quote{}, err
	}
	quote, ok := f.Quotes[symbol]
	if !ok {
		return Quote{}, ErrSymbolUnlisted
	}
	return quote, nil
}

// FakeIndex returns its scripted hits filtered by minScore and cut to
// topK, mirroring the contract real indexes honor.
type FakeIndex struct {
	Hits  []Hit
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	Calls []string
}

func (f *FakeIndex) Search(ctx context.Context, text string, topK int, minScore float64) ([]Hit, error) {
	if err := sleepFor(ctx, f.Delay); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, text)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(f.Hits))
	for _, hit := range f.Hits {
		if hit.Score >= minScore {
			hits = append(hits, hit)
		}
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// FakeEmbedder returns Vec, or a fixed unit vector when Vec is nil.
type FakeEmbedder struct {
	Vec []float32
	Err error

	mu    sync.Mutex
	Calls []string
}

func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, text)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if f.Vec != nil {
		out := make([]float32, len(f.Vec))
		copy(out, f.Vec)
		return out, nil
	}
	return []float32{1, 0, 0}, nil
}

// FakeNewsGraph returns its scripted articles filtered by minScore and
// cut to topK.
type FakeNewsGraph struct {
	Articles []Article
	Err      error

	mu    sync.Mutex
	Calls int
}

func (f *FakeNewsGraph) Similar(ctx context.Context, embedding []float32, topK int, minScore float64) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls++
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(f.Articles))
	for _, article := range f.Articles {
		if article.Score >= minScore {
			articles = append(articles, article)
		}
	}
	if topK > 0 && len(articles) > topK {
		articles = articles[:topK]
	}
	return articles, nil
}

// FakeNewsFeed returns its scripted items cut to limit.
type FakeNewsFeed struct {
	Items []FeedItem
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	Calls [][]string
}

func (f *FakeNewsFeed) Fetch(ctx context.Context, keywords []string, limit int) ([]FeedItem, error) {
	if err := sleepFor(ctx, f.Delay); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, keywords)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	items := f.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]FeedItem, len(items))
	copy(out, items)
	return out, nil
}

// FakeTranslator maps texts through Translations; unknown texts pass
// through unchanged, so tests only script what they assert on.
type FakeTranslator struct {
	Translations map[string]string
	Err          error

	mu    sync.Mutex
	Calls []string
}

func (f *FakeTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, text)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	if translated, ok := f.Translations[text]; ok {
		return translated, nil
	}
	return text, nil
}

// FakeRenderer returns PNG, or a minimal PNG header when PNG is nil.
type FakeRenderer struct {
	PNG []byte
	Err error

	mu    sync.Mutex
	Calls []ChartKind
}

func (f *FakeRenderer) Render(ctx context.Context, series Series, kind ChartKind) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, kind)
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if f.PNG != nil {
		return f.PNG, nil
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

// sleepFor waits d unless ctx ends first. A zero d only checks ctx.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time interface compliance for the fakes.
var (
	_ LanguageModel = (*FakeLM)(nil)
	_ SymbolLookup  = (*FakeSymbols)(nil)
	_ MarketData    = (*FakeMarket)(nil)
	_ SemanticIndex = (*FakeIndex)(nil)
	_ Embedder      = (*FakeEmbedder)(nil)
	_ NewsGraph     = (*FakeNewsGraph)(nil)
	_ NewsFeed      = (*FakeNewsFeed)(nil)
	_ Translator    = (*FakeTranslator)(nil)
	_ ChartRenderer = (*FakeRenderer)(nil)
)
