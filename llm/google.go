package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/finchat-labs/finflow/capability"
)

// Google adapts the Gemini API.
type Google struct {
	client *genai.Client
	model  string
}

// NewGoogle creates a Gemini adapter. Callers own Close.
func NewGoogle(ctx context.Context, apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &Google{client: client, model: model}, nil
}

// Name returns "google".
func (g *Google) Name() string { return "google" }

// Close releases the underlying client.
func (g *Google) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Complete implements capability.LanguageModel.
func (g *Google) Complete(ctx context.Context, prompt capability.Prompt) (capability.Completion, error) {
	if err := ctx.Err(); err != nil {
		return capability.Completion{}, err
	}

	// A fresh model handle per call keeps per-prompt configuration off
	// shared state.
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(prompt.Temperature))
	if prompt.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(prompt.MaxTokens))
	}
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(prompt.System)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return capability.Completion{}, classifyAPIError(g.Name(), err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return capability.Completion{}, capability.TransientFault("gemini returned no candidates", nil)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	var usage capability.Usage
	if resp.UsageMetadata != nil {
		usage = capability.Usage{
			Prompt:     int(resp.UsageMetadata.PromptTokenCount),
			Completion: int(resp.UsageMetadata.CandidatesTokenCount),
			Total:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return capability.Completion{Text: text, Usage: usage}, nil
}

var _ Provider = (*Google)(nil)
