// Package newsfeed fetches fresh articles from news RSS feeds and
// translates foreign-language items.
package newsfeed

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"

	"github.com/finchat-labs/finflow/capability"
)

// googleNewsURL is the Google News RSS search endpoint. The one %s slot
// takes the url-escaped keyword.
const googleNewsURL = "https://news.google.com/rss/search?q=%s&hl=ko&gl=KR&ceid=KR:ko"

// DefaultHTTPTimeout bounds one feed request.
const DefaultHTTPTimeout = 8 * time.Second

// DefaultLimit applies when the caller passes a non-positive limit.
const DefaultLimit = 10

// Client implements the news feed capability over RSS.
type Client struct {
	feedURL string
	parser  *gofeed.Parser
}

// Option adjusts a Client.
type Option func(*Client)

// WithFeedURL points the client at a different RSS endpoint. The URL is
// a format string with one %s slot for the escaped keyword.
func WithFeedURL(format string) Option {
	return func(c *Client) {
		if format != "" {
			c.feedURL = format
		}
	}
}

// WithHTTPClient swaps the HTTP client feed requests go through.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.parser.Client = h
		}
	}
}

// NewClient returns a Client reading Google News RSS.
func NewClient(opts ...Option) *Client {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: DefaultHTTPTimeout}
	p.UserAgent = "finflow/1.0"
	c := &Client{feedURL: googleNewsURL, parser: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ capability.NewsFeed = (*Client)(nil)

// Fetch queries the feed once per keyword and returns up to limit items,
// newest first, deduplicated by link. A keyword failing does not fail
// the fetch as long as another returns items; when everything fails the
// first error comes back.
func (c *Client) Fetch(ctx context.Context, keywords []string, limit int) ([]capability.FeedItem, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		items    []capability.FeedItem
		firstErr error
	)
	seen := make(map[string]bool)
	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		feed, err := c.parser.ParseURLWithContext(fmt.Sprintf(c.feedURL, url.QueryEscape(kw)), ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("newsfeed: fetch %q: %w", kw, err)
			}
			continue
		}
		for _, it := range feed.Items {
			if it == nil || it.Link == "" || seen[it.Link] {
				continue
			}
			seen[it.Link] = true
			items = append(items, normalize(it))
		}
	}

	if len(items) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func normalize(it *gofeed.Item) capability.FeedItem {
	var published time.Time
	switch {
	case it.PublishedParsed != nil:
		published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		published = *it.UpdatedParsed
	}

	body := strings.TrimSpace(it.Content)
	if body == "" {
		body = strings.TrimSpace(it.Description)
	}
	body = strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(body, "")))

	title := strings.TrimSpace(it.Title)
	return capability.FeedItem{
		Title:       title,
		URL:         it.Link,
		PublishedAt: published,
		Language:    detectLanguage(title + " " + body),
		Body:        body,
	}
}

// detectLanguage reports "ko" when the text carries meaningful Hangul,
// "en" otherwise. Feed metadata is unreliable for aggregated results.
// Text with no letters at all counts as "ko" so nothing gets translated.
func detectLanguage(text string) string {
	var hangul, letters int
	for _, r := range text {
		switch {
		case r >= 0xAC00 && r <= 0xD7A3, r >= 0x1100 && r <= 0x11FF, r >= 0x3130 && r <= 0x318F:
			hangul++
			letters++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters == 0 {
		return "ko"
	}
	if hangul*5 >= letters {
		return "ko"
	}
	return "en"
}
