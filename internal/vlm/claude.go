package vlm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeModel = "claude-sonnet-4-5-20250929"

// ClaudeGenerator answers prompts with the Claude messages API. The API
// does not fetch image URLs itself, so the generator downloads the image
// and sends it as a base64 block.
type ClaudeGenerator struct {
	sdk        *anthropic.Client
	httpClient *http.Client
	model      string
}

// NewClaudeGenerator builds a Claude-backed generator.
func NewClaudeGenerator(apiKey string, model string, timeout time.Duration) *ClaudeGenerator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := &http.Client{Timeout: timeout}

	opts := []option.RequestOption{
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if v := strings.TrimSpace(apiKey); v != "" {
		opts = append(opts, option.WithAPIKey(v))
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = defaultClaudeModel
	}

	client := anthropic.NewClient(opts...)
	return &ClaudeGenerator{
		sdk:        &client,
		httpClient: hc,
		model:      m,
	}
}

// Name identifies the backend.
func (g *ClaudeGenerator) Name() string {
	return "claude"
}

// Generate downloads the image, sends it with the prompt, and returns the
// concatenated text blocks of the response.
func (g *ClaudeGenerator) Generate(ctx context.Context, imageURL string, text string) (string, error) {
	if g == nil || g.sdk == nil {
		return "", errors.New("vlm: claude: nil client")
	}
	if ctx == nil {
		return "", errors.New("vlm: claude: nil context")
	}

	mediaType, encoded, err := g.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	msg, err := g.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, encoded),
				anthropic.NewTextBlock(text),
			),
		},
	})
	if err != nil {
		return "", normalizeClaudeError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (g *ClaudeGenerator) fetchImage(ctx context.Context, imageURL string) (mediaType string, encoded string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("vlm: claude: build image request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("vlm: claude: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("vlm: claude: fetch image: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return "", "", fmt.Errorf("vlm: claude: read image: %w", err)
	}

	mediaType = strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(body)
	}

	return mediaType, base64.StdEncoding.EncodeToString(body), nil
}

func normalizeClaudeError(err error) error {
	if err == nil {
		return nil
	}

	var sdkErr *anthropic.Error
	if errors.As(err, &sdkErr) {
		status := fmt.Sprintf("%d %s", sdkErr.StatusCode, http.StatusText(sdkErr.StatusCode))
		if sdkErr.Response != nil {
			status = sdkErr.Response.Status
		}
		return &APIError{
			StatusCode: sdkErr.StatusCode,
			Status:     status,
			Body:       []byte(sdkErr.RawJSON()),
		}
	}
	return err
}
