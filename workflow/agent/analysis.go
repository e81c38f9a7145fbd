package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// Disclaimer attached to every analysis verdict. The combiner keeps it in
// the final reply and the confidence calculator warns when it goes missing.
const Disclaimer = "본 분석은 정보 제공 목적이며 투자 권유가 아닙니다. 투자 판단의 책임은 투자자 본인에게 있습니다."

var ratingPattern = regexp.MustCompile(`(?i)(?:평점|rating)\s*[:：]?\s*([0-9]+)`)

// Analysis produces an investment judgement over the quote fetched by the
// data agent, enriched with reference passages and related archive articles.
// The reference lookups are optional context: if the index or the news
// archive is unreachable the agent degrades to a quote-only judgement
// instead of failing.
type Analysis struct {
	LM       capability.LanguageModel
	Embedder capability.Embedder
	Index    capability.SemanticIndex
	Graph    capability.NewsGraph
	Retry    Retry

	// TopK bounds the reference passages and related articles pulled in as
	// context. Zero means 3.
	TopK int
}

func (a *Analysis) Name() string { return NameAnalysis }

func (a *Analysis) Process(ctx context.Context, in Input) Result {
	start := time.Now()

	if in.FinancialData == nil {
		return failWith(NameAnalysis, KindInternal, "financial data missing from prior stage", start)
	}
	topK := a.TopK
	if topK <= 0 {
		topK = 3
	}

	var snippets []capability.Hit
	if hits, err := a.Index.Search(ctx, in.Query, topK, 0); err == nil {
		snippets = hits
	}
	var related []capability.Article
	if vec, err := a.Embedder.Embed(ctx, in.Query); err == nil {
		if arts, gerr := a.Graph.Similar(ctx, vec, topK, 0); gerr == nil {
			related = arts
		}
	}

	prompt := analysisPrompt(in, snippets, related)
	var out capability.Completion
	err := a.Retry.Do(ctx, func(ctx context.Context) error {
		c, cerr := a.LM.Complete(ctx, prompt)
		if cerr == nil {
			out = c
		}
		return cerr
	})
	if err != nil {
		return failWith(NameAnalysis, Classify(err), err.Error(), start)
	}
	in.Meter.Record(NameAnalysis, out.Usage)

	verdict := &AnalysisVerdict{
		Rating:     parseRating(out.Text),
		Rationale:  strings.TrimSpace(out.Text),
		Disclaimer: Disclaimer,
		Sources:    contextSources(snippets, related),
	}
	return succeed(NameAnalysis, verdict, start)
}

func analysisPrompt(in Input, snippets []capability.Hit, related []capability.Article) capability.Prompt {
	d := in.FinancialData
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n", in.Query)
	fmt.Fprintf(&b, "종목 정보:\n- 종목: %s(%s)\n- 현재가: %s원 (%+.1f%%)\n- 거래량: %s주\n",
		d.Name, d.Symbol, FormatWon(d.Price), d.ChangePct, Comma(d.Volume))
	fmt.Fprintf(&b, "- PER: %.1f / PBR: %.1f / ROE: %.1f%%\n", d.PER, d.PBR, d.ROE)
	if d.Sector != "" {
		fmt.Fprintf(&b, "- 섹터: %s\n", d.Sector)
	}
	if len(snippets) > 0 {
		b.WriteString("\n참고 자료:\n")
		for _, h := range snippets {
			fmt.Fprintf(&b, "- %s\n", h.Snippet)
		}
	}
	if len(related) > 0 {
		b.WriteString("\n관련 기사:\n")
		for _, art := range related {
			fmt.Fprintf(&b, "- %s\n", art.Title)
		}
	}
	b.WriteString("\n위 자료를 근거로 투자 관점의 분석을 작성하세요.\n")
	b.WriteString("첫 줄에 \"평점: N\" 형식으로 1~5점의 투자 매력도를 적고, 근거를 단락으로 설명하세요.\n")
	if in.IsInvestment {
		b.WriteString("질문자가 매수 여부를 고민하고 있으므로 유의할 위험 요인을 반드시 포함하세요.\n")
	}
	return capability.Prompt{
		System:      "당신은 한국 주식 시장을 담당하는 애널리스트입니다. 숫자 근거를 들어 간결한 한국어로 답하고, 확정적인 수익 보장은 절대 하지 않습니다.",
		User:        b.String(),
		Temperature: 0.3,
		MaxTokens:   1024,
	}
}

// parseRating pulls the 1..5 rating from the model text. Out-of-range values
// clamp; a missing rating falls back to the neutral 3.
func parseRating(text string) int {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return 3
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 3
	}
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func contextSources(snippets []capability.Hit, related []capability.Article) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, h := range snippets {
		add(h.Source)
	}
	for _, art := range related {
		add(art.URL)
	}
	return out
}
