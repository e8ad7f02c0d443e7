package embed

import (
	"time"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// SageMakerConfig configures a self-hosted SageMaker real-time inference
// endpoint running an OpenAI-compatible embeddings container (e.g. a
// Hugging Face TEI or vLLM deployment), reached through a signed invocation
// URL supplied as BaseURL and a bearer token for the endpoint gateway.
type SageMakerConfig struct {
	EndpointURL string
	APIKey      string
	Model       string
	Dimensions  int
	Timeout     time.Duration
}

// DefaultSageMakerConfig returns baseline settings; callers fill in the
// endpoint URL and credentials.
func DefaultSageMakerConfig() SageMakerConfig {
	return SageMakerConfig{
		Dimensions: 768,
		Timeout:    DefaultTimeout,
	}
}

// NewSageMakerEmbedder adapts a SageMaker endpoint through the
// OpenAI-compatible client, since most embedding containers deployed behind
// SageMaker real-time endpoints expose that schema.
func NewSageMakerEmbedder(cfg SageMakerConfig) (*OpenAIEmbedder, error) {
	if cfg.EndpointURL == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"sagemaker embedder requires an endpoint URL (DOCINDEX_EMBED_BASE_URL)", nil)
	}
	inner, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL:    cfg.EndpointURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return inner, nil
}
