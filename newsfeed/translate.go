package newsfeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/finchat-labs/finflow/capability"
)

const translateSystem = "당신은 금융 뉴스 번역가입니다. 입력된 텍스트를 대상 언어로 자연스럽게 번역하세요. 번역문만 출력하세요."

// LMTranslator translates through a language model. The pipeline has no
// dedicated translation service; foreign headlines go through the same
// model that answers questions.
type LMTranslator struct {
	lm capability.LanguageModel
}

// NewLMTranslator returns a Translator backed by lm.
func NewLMTranslator(lm capability.LanguageModel) *LMTranslator {
	return &LMTranslator{lm: lm}
}

var _ capability.Translator = (*LMTranslator)(nil)

// Translate renders text in targetLang. Empty input returns empty
// output without a model call; a blank completion falls back to the
// original text.
func (t *LMTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	out, err := t.lm.Complete(ctx, capability.Prompt{
		System:      translateSystem,
		User:        fmt.Sprintf("대상 언어: %s\n\n%s", targetLang, text),
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("newsfeed: translate: %w", err)
	}
	reply := strings.TrimSpace(out.Text)
	if reply == "" {
		return text, nil
	}
	return reply, nil
}
