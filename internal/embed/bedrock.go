package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// BedrockConfig configures an AWS Bedrock runtime embeddings model (e.g.
// Titan Embeddings). Authentication uses a Bedrock API key bearer token
// rather than full SigV4 request signing.
type BedrockConfig struct {
	Region     string
	ModelID    string // e.g. "amazon.titan-embed-text-v2:0"
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// DefaultBedrockConfig returns baseline settings; callers fill in credentials.
func DefaultBedrockConfig() BedrockConfig {
	return BedrockConfig{
		Region:     "us-east-1",
		ModelID:    "amazon.titan-embed-text-v2:0",
		Dimensions: 1024,
		Timeout:    DefaultTimeout,
	}
}

// BedrockEmbedder calls the Bedrock runtime invoke-model endpoint. Titan
// embeddings models accept one input per invocation, so EmbedBatch issues
// one request per text.
type BedrockEmbedder struct {
	cfg    BedrockConfig
	client *http.Client
}

var _ Embedder = (*BedrockEmbedder)(nil)

// NewBedrockEmbedder validates credentials at construction time.
func NewBedrockEmbedder(cfg BedrockConfig) (*BedrockEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"bedrock embedder requires an API key (DOCINDEX_EMBED_API_KEY)", nil)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &BedrockEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type titanEmbedRequest struct {
	InputText           string `json:"inputText"`
	Dimensions          int    `json:"dimensions,omitempty"`
	Normalize           bool   `json:"normalize,omitempty"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Message   string    `json:"message"`
}

func (e *BedrockEmbedder) invokeOne(ctx context.Context, text string) ([]float32, error) {
	reqBody := titanEmbedRequest{InputText: text, Normalize: true}
	if e.cfg.Dimensions > 0 {
		reqBody.Dimensions = e.cfg.Dimensions
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke", e.cfg.Region, e.cfg.ModelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, docerrors.TransientFetch("embedding request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, docerrors.TransientFetch(fmt.Sprintf("bedrock returned %d: %s", resp.StatusCode, body), nil)
	}
	if resp.StatusCode != http.StatusOK {
		var parsed titanEmbedResponse
		msg := string(body)
		if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
			msg = parsed.Message
		}
		if isSizeLimitMessage(msg) {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, msg, nil)
		}
		return nil, docerrors.EmbeddingOther(fmt.Sprintf("bedrock returned %d: %s", resp.StatusCode, msg), nil)
	}

	var parsed titanEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Embedding, nil
}

func (e *BedrockEmbedder) do(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.invokeOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.invokeOne(ctx, text)
}

func (e *BedrockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BisectingEmbed(ctx, texts, e.do)
}

func (e *BedrockEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *BedrockEmbedder) ModelName() string { return "bedrock:" + e.cfg.ModelID }

func (e *BedrockEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

func (e *BedrockEmbedder) Close() error { return nil }
