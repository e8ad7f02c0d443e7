package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// GeminiConfig configures the Google Generative Language API embeddings
// endpoint (generativelanguage.googleapis.com).
type GeminiConfig struct {
	BaseURL    string
	APIKey     string
	Model      string // e.g. "text-embedding-004"
	Dimensions int
	Timeout    time.Duration
}

// DefaultGeminiConfig returns baseline settings; callers fill in credentials.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		Model:      "text-embedding-004",
		Dimensions: 768,
		Timeout:    DefaultTimeout,
	}
}

// GeminiEmbedder calls the Gemini batchEmbedContents endpoint.
type GeminiEmbedder struct {
	cfg    GeminiConfig
	client *http.Client
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder validates credentials at construction time.
func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"gemini embedder requires an API key (DOCINDEX_EMBED_API_KEY)", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &GeminiEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type geminiContent struct {
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiBatchRequest struct {
	Requests []struct {
		Model                string        `json:"model"`
		Content              geminiContent `json:"content"`
		OutputDimensionality int           `json:"outputDimensionality,omitempty"`
	} `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *GeminiEmbedder) do(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + strings.TrimPrefix(e.cfg.Model, "models/")
	var reqBody geminiBatchRequest
	for _, t := range texts {
		item := struct {
			Model                string        `json:"model"`
			Content              geminiContent `json:"content"`
			OutputDimensionality int           `json:"outputDimensionality,omitempty"`
		}{Model: model}
		item.Content.Parts = []struct {
			Text string `json:"text"`
		}{{Text: t}}
		if e.cfg.Dimensions > 0 {
			item.OutputDimensionality = e.cfg.Dimensions
		}
		reqBody.Requests = append(reqBody.Requests, item)
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", strings.TrimRight(e.cfg.BaseURL, "/"), model, e.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, docerrors.TransientFetch("embedding request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, docerrors.TransientFetch(fmt.Sprintf("gemini returned %d: %s", resp.StatusCode, body), nil)
	}
	if resp.StatusCode != http.StatusOK {
		var parsed geminiBatchResponse
		msg := string(body)
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if isSizeLimitMessage(msg) {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, msg, nil)
		}
		return nil, docerrors.EmbeddingOther(fmt.Sprintf("gemini returned %d: %s", resp.StatusCode, msg), nil)
	}

	var parsed geminiBatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([][]float32, len(texts))
	for i, emb := range parsed.Embeddings {
		if i < len(out) {
			out[i] = emb.Values
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BisectingEmbed(ctx, texts, e.do)
}

func (e *GeminiEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *GeminiEmbedder) ModelName() string { return "gemini:" + e.cfg.Model }

func (e *GeminiEmbedder) Available(ctx context.Context) bool {
	_, err := e.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}

func (e *GeminiEmbedder) Close() error { return nil }
