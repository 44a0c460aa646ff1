package vlm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator targets OpenAI-compatible chat-completions servers with
// vision support (sglang and vLLM both expose this API).
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator against an OpenAI-compatible server.
func NewOpenAIGenerator(apiKey string, baseURL string, model string, timeout time.Duration) *OpenAIGenerator {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = "gpt-4o"
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

// Name identifies the backend.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Generate sends the prompt together with the image URL and returns the
// model's raw text.
func (g *OpenAIGenerator) Generate(ctx context.Context, imageURL string, text string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("vlm: openai: nil client")
	}
	if ctx == nil {
		return "", errors.New("vlm: openai: nil context")
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: text,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: imageURL,
						},
					},
				},
			},
		},
		MaxTokens:   1024,
		Temperature: 0,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vlm: openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
