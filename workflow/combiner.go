package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/workflow/agent"
)

// combiner fuses the surviving agent payloads into one reply. The model
// performs the synthesis over source-tagged blocks in fixed order (data,
// analysis, news, knowledge); when it is unreachable the deterministic
// template takes over, which is a degraded success rather than an error.
type combiner struct {
	lm capability.LanguageModel
}

func (n *combiner) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if s.ShortCircuit != nil && s.ShortCircuit.Active {
		// The inline answer already exists; nothing to combine.
		return graph.NodeResult[State]{Route: graph.Goto(nodeResponder)}
	}

	blocks := sourceBlocks(s)
	combined := &Combined{Sources: blockNames(blocks)}

	out, err := n.lm.Complete(ctx, combinePrompt(s.Query, blocks, needsDisclaimer(s)))
	if err == nil && strings.TrimSpace(out.Text) != "" {
		s.Meter.Record(nodeCombiner, out.Usage)
		combined.Reply = strings.TrimSpace(out.Text)
	} else {
		combined.Reply = mergeBlocks(blocks)
		combined.Degraded = true
	}

	return graph.NodeResult[State]{Delta: State{Combined: combined}}
}

// block is one agent's contribution to the final reply. An anonymous block
// (empty name and title) carries pre-combined text and is emitted verbatim.
type block struct {
	name  string
	title string
	text  string
}

// sourceBlocks collects the successful payloads in the fixed reply order.
// Payload presence implies agent success: the executor installs payloads
// only from successful results.
func sourceBlocks(s State) []block {
	var blocks []block
	if s.FinancialData != nil {
		blocks = append(blocks, block{
			name:  agent.NameData,
			title: "시세 정보",
			text:  formatFinancial(s.FinancialData),
		})
	}
	if s.AnalysisResult != nil {
		v := s.AnalysisResult
		text := v.Rationale
		if !strings.Contains(text, v.Disclaimer) {
			text += "\n\n" + v.Disclaimer
		}
		blocks = append(blocks, block{name: agent.NameAnalysis, title: "투자 분석", text: text})
	}
	if len(s.NewsData) > 0 {
		blocks = append(blocks, block{name: agent.NameNews, title: "최근 뉴스", text: formatNews(s.NewsData)})
	}
	if s.KnowledgeContext != nil {
		blocks = append(blocks, block{
			name:  agent.NameKnowledge,
			title: "참고 정보",
			text:  s.KnowledgeContext.Explanation,
		})
	}
	return blocks
}

func blockNames(blocks []block) []string {
	names := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.name != "" {
			names = append(names, b.name)
		}
	}
	return names
}

func formatFinancial(d *agent.FinancialData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) 현재가 %s원, 전일 대비 %+.1f%%, 거래량 %s주",
		d.Name, d.Symbol, agent.FormatWon(d.Price), d.ChangePct, agent.Comma(d.Volume))
	if d.PER != 0 || d.PBR != 0 || d.ROE != 0 {
		fmt.Fprintf(&b, "\nPER %.1f / PBR %.1f / ROE %.1f%%", d.PER, d.PBR, d.ROE)
	}
	if d.Sector != "" {
		fmt.Fprintf(&b, "\n섹터: %s", d.Sector)
	}
	return b.String()
}

// formatNews renders the scored items, capped at five for the reply body.
// The full list still travels in the response payload.
func formatNews(items []agent.NewsItem) string {
	const shown = 5
	var b strings.Builder
	for i, it := range items {
		if i >= shown {
			fmt.Fprintf(&b, "외 %d건", len(items)-shown)
			break
		}
		fmt.Fprintf(&b, "- %s", it.Title)
		if !it.PublishedAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", it.PublishedAt.Format("01/02"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func needsDisclaimer(s State) bool {
	if s.AnalysisResult != nil {
		return true
	}
	return s.Analysis != nil && s.Analysis.IsInvestment
}

func combinePrompt(query string, blocks []block, disclaimer bool) capability.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n", query)
	b.WriteString("수집된 자료:\n")
	for _, blk := range blocks {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", blk.name, blk.text)
	}
	b.WriteString("위 자료를 하나의 답변으로 합성하세요.\n")
	b.WriteString("- 순서: 시세 → 분석 → 뉴스 → 참고 정보. 없는 항목은 건너뜁니다.\n")
	b.WriteString("- 중복된 내용은 한 번만 쓰고, 출처 태그([data] 등)는 제거합니다.\n")
	if disclaimer {
		fmt.Fprintf(&b, "- 다음 고지 문구를 답변 끝에 그대로 포함하세요: %s\n", agent.Disclaimer)
	}
	return capability.Prompt{
		System:      "당신은 여러 금융 에이전트의 결과를 사용자에게 전달할 하나의 답변으로 합성하는 어시스턴트입니다. 수집된 자료에 없는 내용은 지어내지 않습니다.",
		User:        b.String(),
		Temperature: 0.3,
		MaxTokens:   1500,
	}
}

// blankLines matches paragraph separators, tolerating stray spaces on the
// otherwise-empty line.
var blankLines = regexp.MustCompile(`\n[ \t]*\n+`)

// fallbackEmptyReply covers the anomaly of a combine with nothing to
// combine; the confidence warnings will flag the thin answer.
const fallbackEmptyReply = "요청하신 내용에 대해 수집된 자료가 없습니다. 질문을 바꿔서 다시 시도해주세요."

// mergeBlocks is the deterministic synthesis fallback: titled sections in
// fixed order with exact-duplicate paragraphs dropped across blocks. Output
// is normalized (trimmed paragraphs, single blank line between them), which
// makes the merge idempotent: feeding the result back as a single anonymous
// block reproduces it.
func mergeBlocks(blocks []block) string {
	seen := make(map[string]bool)
	var parts []string
	for _, blk := range blocks {
		body := dedupParagraphs(blk.text, seen)
		if body == "" {
			continue
		}
		if blk.title != "" {
			parts = append(parts, "【"+blk.title+"】\n"+body)
		} else {
			parts = append(parts, body)
		}
	}
	if len(parts) == 0 {
		return fallbackEmptyReply
	}
	return strings.Join(parts, "\n\n")
}

// dedupParagraphs normalizes text into trimmed paragraphs, dropping any
// paragraph already recorded in seen. seen spans blocks so a sentence
// repeated by two agents appears once in the merged reply.
func dedupParagraphs(text string, seen map[string]bool) string {
	var kept []string
	for _, para := range blankLines.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" || seen[para] {
			continue
		}
		seen[para] = true
		kept = append(kept, para)
	}
	return strings.Join(kept, "\n\n")
}
