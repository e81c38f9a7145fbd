package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/finchat-labs/finflow/capability"
)

// anthropicDefaultMaxTokens bounds completions when the prompt does not;
// the Messages API requires an explicit limit.
const anthropicDefaultMaxTokens = 4096

// Anthropic adapts the Anthropic Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic adapter for the given model.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: &client, model: model}, nil
}

// Name returns "anthropic".
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements capability.LanguageModel. The system prompt rides the
// Messages API's dedicated system parameter rather than the message list.
func (a *Anthropic) Complete(ctx context.Context, prompt capability.Prompt) (capability.Completion, error) {
	if err := ctx.Err(); err != nil {
		return capability.Completion{}, err
	}

	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(prompt.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return capability.Completion{}, classifyAPIError(a.Name(), err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return capability.Completion{
		Text: text,
		Usage: capability.Usage{
			Prompt:     int(message.Usage.InputTokens),
			Completion: int(message.Usage.OutputTokens),
			Total:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

var _ Provider = (*Anthropic)(nil)
