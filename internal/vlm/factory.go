package vlm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cerebella/vlm-bench/internal/config"
)

// FromConfig builds the configured inference backend.
func FromConfig(cfg *config.Config) (Generator, error) {
	if cfg == nil {
		return nil, errors.New("vlm: nil config")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Endpoint.Backend))
	switch backend {
	case "", "endpoint", "http":
		url := strings.TrimSpace(cfg.Endpoint.URL)
		if url == "" {
			return nil, errors.New("vlm: missing endpoint url (set endpoint.url or VLMBENCH_ENDPOINT_URL)")
		}
		return NewClient(url, WithTimeout(cfg.Endpoint.Timeout.Std())), nil
	case "openai":
		return NewOpenAIGenerator(cfg.Endpoint.APIKey, cfg.Endpoint.URL, cfg.Endpoint.Model, cfg.Endpoint.Timeout.Std()), nil
	case "claude", "anthropic":
		return NewClaudeGenerator(cfg.Endpoint.APIKey, cfg.Endpoint.Model, cfg.Endpoint.Timeout.Std()), nil
	default:
		return nil, fmt.Errorf("vlm: unknown backend %q (expected endpoint|openai|claude)", cfg.Endpoint.Backend)
	}
}
