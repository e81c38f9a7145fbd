package agent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// News collects recent coverage from two sources: the news archive, searched
// by query embedding, and the live feed. Items are translated to Korean when
// needed, deduplicated across sources, scored by relevance and recency, and
// capped at TopK.
//
// One healthy source is enough: a feed outage with archive hits in hand (or
// the reverse) is a partial success. The agent fails only when both sources
// fail and nothing was collected.
type News struct {
	Embedder   capability.Embedder
	Graph      capability.NewsGraph
	Feed       capability.NewsFeed
	Translator capability.Translator
	Retry      Retry

	// TopK caps the returned items. Zero means 10.
	TopK int

	// MinScore filters archive hits below the similarity floor.
	MinScore float64

	// DedupThreshold is the title Jaccard similarity at or above which two
	// items count as the same story. Zero means 0.9.
	DedupThreshold float64
}

// feedRelevance stands in for items with no similarity score of their own.
// Feed results were keyword-matched, so they start from neutral relevance.
const feedRelevance = 0.5

func (a *News) Name() string { return NameNews }

func (a *News) Process(ctx context.Context, in Input) Result {
	start := time.Now()

	topK := a.TopK
	if topK <= 0 {
		topK = 10
	}
	threshold := a.DedupThreshold
	if threshold <= 0 {
		threshold = 0.9
	}

	var items []NewsItem
	var graphErr, feedErr error

	if vec, err := a.Embedder.Embed(ctx, in.Query); err != nil {
		graphErr = err
	} else if arts, err := a.Graph.Similar(ctx, vec, topK, a.MinScore); err != nil {
		graphErr = err
	} else {
		for _, art := range arts {
			items = append(items, NewsItem{
				Title:       art.Title,
				URL:         art.URL,
				PublishedAt: art.PublishedAt,
				Source:      "graph",
				Summary:     art.Summary,
				Relevance:   art.Score,
			})
		}
	}

	feedItems, err := a.Feed.Fetch(ctx, feedKeywords(in), topK)
	if err != nil {
		feedErr = err
	} else {
		for _, it := range feedItems {
			items = append(items, a.feedItem(ctx, it))
		}
	}

	if len(items) == 0 && (graphErr != nil || feedErr != nil) {
		joined := errors.Join(graphErr, feedErr)
		return failWith(NameNews, Classify(joined), "news lookup failed: "+joined.Error(), start)
	}

	items = dedupNews(items, threshold)
	now := time.Now()
	for i := range items {
		items[i].Score = newsScore(items[i].Relevance, now.Sub(items[i].PublishedAt))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > topK {
		items = items[:topK]
	}
	return succeed(NameNews, items, start)
}

// feedItem converts a raw feed entry, translating non-Korean text. A failed
// translation keeps the original text rather than dropping the item.
func (a *News) feedItem(ctx context.Context, it capability.FeedItem) NewsItem {
	title, summary := it.Title, it.Body
	if it.Language != "" && it.Language != "ko" {
		if t, err := a.Translator.Translate(ctx, it.Title, "ko"); err == nil {
			title = t
		}
		if it.Body != "" {
			if t, err := a.Translator.Translate(ctx, it.Body, "ko"); err == nil {
				summary = t
			}
		}
	}
	return NewsItem{
		Title:       title,
		URL:         it.URL,
		PublishedAt: it.PublishedAt,
		Source:      "feed",
		Summary:     summary,
		Relevance:   feedRelevance,
	}
}

// feedKeywords picks the feed search terms: the resolved company name when a
// prior stage produced one, the raw query otherwise.
func feedKeywords(in Input) []string {
	if in.FinancialData != nil && in.FinancialData.Name != "" {
		return []string{in.FinancialData.Name}
	}
	return []string{in.Query}
}

// dedupNews drops repeated stories. Exact URL match wins first; items that
// survive it are compared by title Jaccard similarity against everything
// already kept. Input order is preserved, so archive hits shadow feed copies.
func dedupNews(items []NewsItem, threshold float64) []NewsItem {
	seen := make(map[string]bool, len(items))
	kept := items[:0:0]
	for _, it := range items {
		url := strings.TrimSpace(it.URL)
		if url != "" {
			if seen[url] {
				continue
			}
			seen[url] = true
		}
		dup := false
		for _, k := range kept {
			if titleJaccard(it.Title, k.Title) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, it)
		}
	}
	return kept
}

// titleJaccard measures overlap between two titles as sets of whitespace
// separated tokens, case folded. Two empty titles count as identical.
func titleJaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	shared := 0
	for tok := range tb {
		if ta[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 1
	}
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

// newsScore weighs similarity against freshness: 0.7 on relevance plus a
// recency bonus of 0.3 inside 24 hours, 0.2 inside 48, 0.1 beyond.
func newsScore(relevance float64, age time.Duration) float64 {
	bonus := 0.1
	switch {
	case age < 24*time.Hour:
		bonus = 0.3
	case age < 48*time.Hour:
		bonus = 0.2
	}
	return 0.7*relevance + bonus
}
