package agent

import (
	"context"
	"testing"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

func TestTitleJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "삼성전자 반도체 실적 발표", "삼성전자 반도체 실적 발표", 1},
		{"case folded", "Samsung Beats Estimates", "samsung beats estimates", 1},
		{"disjoint", "삼성전자 실적", "카카오 주가", 0},
		{"partial", "a b", "a c", 1.0 / 3.0},
		{"both empty", "", "", 1},
		{"one empty", "삼성전자", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := titleJaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("titleJaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDedupNews(t *testing.T) {
	items := []NewsItem{
		{Title: "삼성전자 2분기 실적 발표", URL: "https://news.example/a"},
		{Title: "카카오 신규 서비스 출시", URL: "https://news.example/b"},
		{Title: "삼성전자 2분기 실적 발표 소식", URL: "https://news.example/a"},  // same URL
		{Title: "삼성전자 2분기 실적 발표", URL: "https://other.example/mirror"}, // same title
		{Title: "네이버 광고 매출 성장", URL: "https://news.example/c"},
	}
	kept := dedupNews(items, 0.9)
	if len(kept) != 3 {
		t.Fatalf("kept %d items, want 3: %+v", len(kept), kept)
	}
	if kept[0].URL != "https://news.example/a" || kept[1].URL != "https://news.example/b" || kept[2].URL != "https://news.example/c" {
		t.Errorf("wrong survivors: %+v", kept)
	}
}

func TestNewsScore(t *testing.T) {
	tests := []struct {
		name      string
		relevance float64
		age       time.Duration
		want      float64
	}{
		{"fresh and relevant", 1.0, time.Hour, 1.0},
		{"day old", 1.0, 36 * time.Hour, 0.9},
		{"stale", 1.0, 100 * time.Hour, 0.8},
		{"stale and irrelevant", 0, 100 * time.Hour, 0.1},
		{"fresh feed item", 0.5, time.Hour, 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newsScore(tt.relevance, tt.age)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("newsScore(%v, %v) = %v, want %v", tt.relevance, tt.age, got, tt.want)
			}
		})
	}
}

func TestNewsAgentMergesSourcesAndRanks(t *testing.T) {
	now := time.Now()
	a := &News{
		Embedder: &capability.FakeEmbedder{},
		Graph: &capability.FakeNewsGraph{Articles: []capability.Article{
			{Title: "삼성전자 반도체 수요 회복", URL: "https://news.example/chip", PublishedAt: now.Add(-2 * time.Hour), Score: 0.9},
			{Title: "삼성전자 신제품 공개", URL: "https://news.example/launch", PublishedAt: now.Add(-30 * time.Hour), Score: 0.8},
		}},
		Feed: &capability.FakeNewsFeed{Items: []capability.FeedItem{
			{Title: "삼성전자 반도체 수요 회복", URL: "https://news.example/chip", PublishedAt: now.Add(-2 * time.Hour)},
			{Title: "외국인 순매수 지속", URL: "https://news.example/flow", PublishedAt: now.Add(-3 * time.Hour)},
		}},
		Translator: &capability.FakeTranslator{},
		TopK:       10,
	}

	res := a.Process(context.Background(), Input{Query: "삼성전자 뉴스"})
	if !res.Success {
		t.Fatalf("Process() failed: %v", res.Err)
	}
	items := res.Payload.([]NewsItem)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 after the duplicate feed copy is dropped: %+v", len(items), items)
	}
	// 0.7*0.9+0.3 = 0.93 beats 0.7*0.8+0.2 = 0.76 beats nothing below feed's 0.65.
	if items[0].URL != "https://news.example/chip" {
		t.Errorf("top item %q, want the fresh high-relevance archive hit", items[0].URL)
	}
	if items[0].Source != "graph" {
		t.Errorf("top item source %q, want the archive copy to shadow the feed copy", items[0].Source)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Score > items[i-1].Score {
			t.Errorf("items not sorted by score: %v then %v", items[i-1].Score, items[i].Score)
		}
	}
}

func TestNewsAgentTranslatesFeedItems(t *testing.T) {
	a := &News{
		Embedder: &capability.FakeEmbedder{},
		Graph:    &capability.FakeNewsGraph{},
		Feed: &capability.FakeNewsFeed{Items: []capability.FeedItem{
			{Title: "Samsung beats estimates", URL: "https://en.example/beat", Language: "en", PublishedAt: time.Now()},
		}},
		Translator: &capability.FakeTranslator{Translations: map[string]string{
			"Samsung beats estimates": "삼성전자 실적 예상치 상회",
		}},
	}

	res := a.Process(context.Background(), Input{Query: "삼성전자 뉴스"})
	if !res.Success {
		t.Fatalf("Process() failed: %v", res.Err)
	}
	items := res.Payload.([]NewsItem)
	if len(items) != 1 || items[0].Title != "삼성전자 실적 예상치 상회" {
		t.Errorf("items = %+v, want the translated title", items)
	}
}

func TestNewsAgentPartialSuccessOnFeedFailure(t *testing.T) {
	a := &News{
		Embedder: &capability.FakeEmbedder{},
		Graph: &capability.FakeNewsGraph{Articles: []capability.Article{
			{Title: "네이버 광고 매출", URL: "https://news.example/ad", PublishedAt: time.Now(), Score: 0.7},
		}},
		Feed:       &capability.FakeNewsFeed{Err: capability.TransientFault("rss fetch 503", nil)},
		Translator: &capability.FakeTranslator{},
	}

	res := a.Process(context.Background(), Input{Query: "네이버 뉴스"})
	if !res.Success {
		t.Fatalf("one healthy source should carry the result, got %v", res.Err)
	}
	if items := res.Payload.([]NewsItem); len(items) != 1 {
		t.Errorf("got %d items, want the archive hit", len(items))
	}
}

func TestNewsAgentFailsWhenBothSourcesFail(t *testing.T) {
	a := &News{
		Embedder:   &capability.FakeEmbedder{Err: capability.TransientFault("embedding api down", nil)},
		Graph:      &capability.FakeNewsGraph{},
		Feed:       &capability.FakeNewsFeed{Err: capability.TransientFault("rss fetch 503", nil)},
		Translator: &capability.FakeTranslator{},
	}

	res := a.Process(context.Background(), Input{Query: "네이버 뉴스"})
	if res.Success {
		t.Fatal("Process() succeeded with both sources down")
	}
	if res.Err.Kind != KindTransientExternal {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindTransientExternal)
	}
}

func TestNewsAgentEmptyResultIsSuccess(t *testing.T) {
	a := &News{
		Embedder:   &capability.FakeEmbedder{},
		Graph:      &capability.FakeNewsGraph{},
		Feed:       &capability.FakeNewsFeed{},
		Translator: &capability.FakeTranslator{},
	}

	res := a.Process(context.Background(), Input{Query: "상장폐지 뉴스"})
	if !res.Success {
		t.Fatalf("no coverage is not an error, got %v", res.Err)
	}
	if items := res.Payload.([]NewsItem); len(items) != 0 {
		t.Errorf("items = %+v, want none", items)
	}
}

func TestFeedKeywords(t *testing.T) {
	in := Input{Query: "카카오 최근 소식"}
	if got := feedKeywords(in); len(got) != 1 || got[0] != "카카오 최근 소식" {
		t.Errorf("feedKeywords = %v, want the raw query", got)
	}
	in.FinancialData = &FinancialData{Name: "카카오"}
	if got := feedKeywords(in); len(got) != 1 || got[0] != "카카오" {
		t.Errorf("feedKeywords = %v, want the resolved name", got)
	}
}
