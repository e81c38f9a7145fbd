package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// Knowledge answers terminology and concept questions from the reference
// index. Explanations are grounded strictly on retrieved passages; when
// nothing relevant is indexed the agent reports no_context rather than
// letting the model improvise.
type Knowledge struct {
	LM    capability.LanguageModel
	Index capability.SemanticIndex
	Retry Retry

	// TopK bounds retrieved passages. Zero means 3.
	TopK int

	// MinScore is the similarity floor for usable passages. Zero means 0.3.
	MinScore float64
}

func (a *Knowledge) Name() string { return NameKnowledge }

func (a *Knowledge) Process(ctx context.Context, in Input) Result {
	start := time.Now()

	topK := a.TopK
	if topK <= 0 {
		topK = 3
	}
	minScore := a.MinScore
	if minScore <= 0 {
		minScore = 0.3
	}

	hits, err := a.Index.Search(ctx, in.Query, topK, minScore)
	if err != nil {
		return failWith(NameKnowledge, Classify(err), err.Error(), start)
	}
	if len(hits) == 0 {
		return failWith(NameKnowledge, KindNoContext, "no reference material matched the question", start)
	}

	var out capability.Completion
	err = a.Retry.Do(ctx, func(ctx context.Context) error {
		c, cerr := a.LM.Complete(ctx, knowledgePrompt(in.Query, hits))
		if cerr == nil {
			out = c
		}
		return cerr
	})
	if err != nil {
		return failWith(NameKnowledge, Classify(err), err.Error(), start)
	}
	in.Meter.Record(NameKnowledge, out.Usage)

	return succeed(NameKnowledge, &KnowledgeContext{
		Explanation: strings.TrimSpace(out.Text),
		Hits:        hits,
	}, start)
}

func knowledgePrompt(query string, hits []capability.Hit) capability.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n참고 자료:\n", query)
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s\n", h.Snippet)
	}
	b.WriteString("\n참고 자료의 내용만 근거로 질문에 답하세요. ")
	b.WriteString("쉬운 한국어로 설명하고 구체적인 예시를 하나 들어주세요. ")
	b.WriteString("마지막 줄에 해석할 때 주의할 점을 한 문장 덧붙이세요.")
	return capability.Prompt{
		System:      "당신은 금융 용어와 투자 개념을 초보자에게 설명하는 전문가입니다.",
		User:        b.String(),
		Temperature: 0.3,
		MaxTokens:   800,
	}
}
