package embed

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/docindex/internal/config"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAzure     ProviderType = "azure"
	ProviderVertex    ProviderType = "vertex"
	ProviderGemini    ProviderType = "gemini"
	ProviderBedrock   ProviderType = "bedrock"
	ProviderSageMaker ProviderType = "sagemaker"
)

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderOpenAI), string(ProviderAzure), string(ProviderVertex),
		string(ProviderGemini), string(ProviderBedrock), string(ProviderSageMaker),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// ParseProvider converts a string to ProviderType, defaulting to OpenAI.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "azure":
		return ProviderAzure
	case "vertex":
		return ProviderVertex
	case "gemini":
		return ProviderGemini
	case "bedrock":
		return ProviderBedrock
	case "sagemaker":
		return ProviderSageMaker
	default:
		return ProviderOpenAI
	}
}

func (p ProviderType) String() string { return string(p) }

// Settings carries the provider-agnostic construction parameters, sourced
// from config plus environment variable overrides (DOCINDEX_EMBED_*).
type Settings struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	BaseURL    string
	APIKey     string
	Project    string // vertex
	Location   string // vertex
	Region     string // bedrock
	Timeout    time.Duration
	CacheSize  int
}

// SettingsFromEnv builds Settings from base and applies DOCINDEX_EMBED_*
// environment overrides, following the same override-layer convention used
// throughout the package (env beats config file).
func SettingsFromEnv(base Settings) Settings {
	s := base
	if v := os.Getenv("DOCINDEX_EMBED_PROVIDER"); v != "" {
		s.Provider = ParseProvider(v)
	}
	if v := os.Getenv("DOCINDEX_EMBED_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_BASE_URL"); v != "" {
		s.BaseURL = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_PROJECT"); v != "" {
		s.Project = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_LOCATION"); v != "" {
		s.Location = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_REGION"); v != "" {
		s.Region = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Dimensions = n
		}
	}
	if v := os.Getenv("DOCINDEX_EMBED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Timeout = d
		}
	}
	return s
}

// SettingsFromConfig maps the configuration's Embeddings section onto
// Settings. API keys are deliberately absent from config.yaml and sourced
// only via DOCINDEX_EMBED_API_KEY, applied afterwards by SettingsFromEnv.
func SettingsFromConfig(c config.EmbeddingsConfig) Settings {
	return Settings{
		Provider:   ParseProvider(c.Provider),
		Model:      c.Model,
		Dimensions: c.Dimensions,
		BaseURL:    c.BaseURL,
		Project:    c.Project,
		Location:   c.Location,
		Region:     c.Region,
		Timeout:    c.Timeout,
		CacheSize:  c.CacheSize,
	}
}

// NewEmbedder constructs the configured provider's embedder, validates its
// credentials, and wraps it with an LRU query cache unless disabled via
// DOCINDEX_EMBED_CACHE=false.
func NewEmbedder(s Settings) (Embedder, error) {
	var embedder Embedder
	var err error

	switch s.Provider {
	case ProviderAzure:
		cfg := DefaultOpenAIConfig()
		cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions = s.BaseURL, s.APIKey, s.Model, s.Dimensions
		cfg.AzureAPIVersion = "2024-06-01"
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewOpenAIEmbedder(cfg)

	case ProviderVertex:
		cfg := DefaultVertexConfig()
		cfg.Project, cfg.Location, cfg.Model, cfg.AccessToken, cfg.Dimensions = s.Project, s.Location, s.Model, s.APIKey, s.Dimensions
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewVertexEmbedder(cfg)

	case ProviderGemini:
		cfg := DefaultGeminiConfig()
		cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions = s.BaseURL, s.APIKey, s.Model, s.Dimensions
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewGeminiEmbedder(cfg)

	case ProviderBedrock:
		cfg := DefaultBedrockConfig()
		cfg.Region, cfg.ModelID, cfg.APIKey, cfg.Dimensions = s.Region, s.Model, s.APIKey, s.Dimensions
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewBedrockEmbedder(cfg)

	case ProviderSageMaker:
		cfg := DefaultSageMakerConfig()
		cfg.EndpointURL, cfg.APIKey, cfg.Model, cfg.Dimensions = s.BaseURL, s.APIKey, s.Model, s.Dimensions
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewSageMakerEmbedder(cfg)

	default: // ProviderOpenAI
		cfg := DefaultOpenAIConfig()
		if s.BaseURL != "" {
			cfg.BaseURL = s.BaseURL
		}
		cfg.APIKey = s.APIKey
		if s.Model != "" {
			cfg.Model = s.Model
		}
		if s.Dimensions > 0 {
			cfg.Dimensions = s.Dimensions
		}
		if s.Timeout > 0 {
			cfg.Timeout = s.Timeout
		}
		embedder, err = NewOpenAIEmbedder(cfg)
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, s.CacheSize)
	}
	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("DOCINDEX_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// EmbedderInfo summarizes a constructed embedder for status reporting.
type EmbedderInfo struct {
	ModelName  string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	return EmbedderInfo{
		ModelName:  embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(s Settings) Embedder {
	embedder, err := NewEmbedder(s)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
