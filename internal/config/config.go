package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

const (
	defaultDatasetPath    = "test.jsonl"
	defaultImageBaseURL   = "https://raw.githubusercontent.com/mathllm/MATH-V/refs/heads/main/images"
	defaultConcurrency    = 16
	defaultRequestTimeout = 300 * time.Second
	defaultStrategy       = "overlap"
)

// Duration is a time.Duration that unmarshals from YAML scalars like "300s"
// (yaml.v3 does not decode duration strings on its own).
type Duration time.Duration

// UnmarshalYAML parses a duration scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.ScalarNode {
		return errors.New("config: duration must be a scalar like \"300s\"")
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Run      RunConfig      `yaml:"run"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Storage  StorageConfig  `yaml:"storage"`
}

type EndpointConfig struct {
	Backend string        `yaml:"backend,omitempty"` // "endpoint", "openai", or "claude"
	URL     string        `yaml:"url,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	APIKey  string   `yaml:"api_key,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

type DatasetConfig struct {
	Path         string `yaml:"path,omitempty"`
	ImageBaseURL string `yaml:"image_base_url,omitempty"`
}

type RunConfig struct {
	Concurrency int    `yaml:"concurrency,omitempty"`
	OutputDir   string `yaml:"output_dir,omitempty"`
}

type ScoringConfig struct {
	Strategy string `yaml:"strategy,omitempty"` // "exact" or "overlap"
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

// Default returns a config usable without any file on disk.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			Backend: "endpoint",
			Timeout: Duration(defaultRequestTimeout),
		},
		Dataset: DatasetConfig{
			Path:         defaultDatasetPath,
			ImageBaseURL: defaultImageBaseURL,
		},
		Run: RunConfig{
			Concurrency: defaultConcurrency,
			OutputDir:   ".",
		},
		Scoring: ScoringConfig{
			Strategy: defaultStrategy,
		},
	}
}

// Load reads the YAML config at path, falling back to defaults when the
// file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus env are enough to run against a public endpoint.
	default:
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := strings.TrimSpace(os.Getenv("VLMBENCH_ENDPOINT_URL")); v != "" {
		cfg.Endpoint.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("VLMBENCH_DATASET")); v != "" {
		cfg.Dataset.Path = v
	}

	if strings.TrimSpace(cfg.Endpoint.APIKey) != "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Endpoint.Backend)) {
	case "openai":
		if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
			cfg.Endpoint.APIKey = v
		}
	case "claude", "anthropic":
		if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
			cfg.Endpoint.APIKey = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if strings.TrimSpace(cfg.Endpoint.Backend) == "" {
		cfg.Endpoint.Backend = "endpoint"
	}
	if cfg.Endpoint.Timeout <= 0 {
		cfg.Endpoint.Timeout = Duration(defaultRequestTimeout)
	}
	if strings.TrimSpace(cfg.Dataset.Path) == "" {
		cfg.Dataset.Path = defaultDatasetPath
	}
	if strings.TrimSpace(cfg.Dataset.ImageBaseURL) == "" {
		cfg.Dataset.ImageBaseURL = defaultImageBaseURL
	}
	if cfg.Run.Concurrency <= 0 {
		cfg.Run.Concurrency = defaultConcurrency
	}
	if strings.TrimSpace(cfg.Run.OutputDir) == "" {
		cfg.Run.OutputDir = "."
	}
	if strings.TrimSpace(cfg.Scoring.Strategy) == "" {
		cfg.Scoring.Strategy = defaultStrategy
	}
}
