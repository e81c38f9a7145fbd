package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/finchat-labs/finflow/capability"
)

// OpenAI adapts the OpenAI chat and embeddings APIs. It is the only
// provider that also serves as a capability.Embedder.
//
// The underlying SDK client is safe for concurrent use.
type OpenAI struct {
	client     *openai.Client
	model      string
	embedModel string
	jsonMode   bool
}

// OpenAIOption configures the adapter.
type OpenAIOption func(*OpenAI)

// WithJSONOutput asks the chat API for a JSON object response. Useful when
// a caller parses completions as JSON rather than line format.
func WithJSONOutput() OpenAIOption {
	return func(o *OpenAI) { o.jsonMode = true }
}

// WithEmbedModel overrides the embeddings model.
func WithEmbedModel(model string) OpenAIOption {
	return func(o *OpenAI) { o.embedModel = model }
}

// NewOpenAI creates an OpenAI adapter for the given chat model.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	o := &OpenAI{
		client:     &client,
		model:      model,
		embedModel: string(openai.EmbeddingModelTextEmbedding3Small),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return "openai" }

// Complete implements capability.LanguageModel.
func (o *OpenAI) Complete(ctx context.Context, prompt capability.Prompt) (capability.Completion, error) {
	if err := ctx.Err(); err != nil {
		return capability.Completion{}, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(prompt.System),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(prompt.User),
			},
		},
	})

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(prompt.Temperature),
	}
	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(prompt.MaxTokens))
	}
	if o.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return capability.Completion{}, classifyAPIError(o.Name(), err)
	}
	if len(completion.Choices) == 0 {
		return capability.Completion{}, capability.TransientFault("openai returned no choices", nil)
	}

	return capability.Completion{
		Text: completion.Choices[0].Message.Content,
		Usage: capability.Usage{
			Prompt:     int(completion.Usage.PromptTokens),
			Completion: int(completion.Usage.CompletionTokens),
			Total:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Embed implements capability.Embedder through the embeddings API.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, classifyAPIError(o.Name(), err)
	}
	if len(resp.Data) == 0 {
		return nil, capability.TransientFault("openai returned no embedding", nil)
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

var (
	_ Provider            = (*OpenAI)(nil)
	_ capability.Embedder = (*OpenAI)(nil)
)
