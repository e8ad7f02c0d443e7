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

// VertexConfig configures a Vertex AI text-embeddings predict endpoint.
// Authentication uses a bearer access token (short-lived OAuth2 token from
// Application Default Credentials, minted by the operator's environment and
// supplied via AccessToken) rather than embedding a full OAuth2 client.
type VertexConfig struct {
	Project     string
	Location    string
	Model       string // e.g. "text-embedding-004"
	AccessToken string
	Dimensions  int
	Timeout     time.Duration
}

// DefaultVertexConfig returns baseline settings; callers fill in project/creds.
func DefaultVertexConfig() VertexConfig {
	return VertexConfig{
		Location:   "us-central1",
		Model:      "text-embedding-004",
		Dimensions: 768,
		Timeout:    DefaultTimeout,
	}
}

// VertexEmbedder calls the Vertex AI publisher-model predict endpoint.
type VertexEmbedder struct {
	cfg    VertexConfig
	client *http.Client
}

var _ Embedder = (*VertexEmbedder)(nil)

// NewVertexEmbedder validates credentials at construction time.
func NewVertexEmbedder(cfg VertexConfig) (*VertexEmbedder, error) {
	if cfg.Project == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"vertex embedder requires a project id (DOCINDEX_EMBED_PROJECT)", nil)
	}
	if cfg.AccessToken == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"vertex embedder requires an access token (DOCINDEX_EMBED_API_KEY)", nil)
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &VertexEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type vertexInstance struct {
	Content string `json:"content"`
}

type vertexPredictRequest struct {
	Instances  []vertexInstance `json:"instances"`
	Parameters struct {
		OutputDimensionality int `json:"outputDimensionality,omitempty"`
	} `json:"parameters,omitempty"`
}

type vertexPredictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *VertexEmbedder) url() string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		e.cfg.Location, e.cfg.Project, e.cfg.Location, e.cfg.Model)
}

func (e *VertexEmbedder) do(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := vertexPredictRequest{}
	for _, t := range texts {
		reqBody.Instances = append(reqBody.Instances, vertexInstance{Content: t})
	}
	if e.cfg.Dimensions > 0 {
		reqBody.Parameters.OutputDimensionality = e.cfg.Dimensions
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.AccessToken)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, docerrors.TransientFetch("embedding request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, docerrors.TransientFetch(fmt.Sprintf("vertex returned %d: %s", resp.StatusCode, body), nil)
	}
	if resp.StatusCode != http.StatusOK {
		var parsed vertexPredictResponse
		msg := string(body)
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if isSizeLimitMessage(msg) {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, msg, nil)
		}
		return nil, docerrors.EmbeddingOther(fmt.Sprintf("vertex returned %d: %s", resp.StatusCode, msg), nil)
	}

	var parsed vertexPredictResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([][]float32, len(texts))
	for i, p := range parsed.Predictions {
		if i < len(out) {
			out[i] = p.Embeddings.Values
		}
	}
	return out, nil
}

func (e *VertexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BisectingEmbed(ctx, texts, e.do)
}

func (e *VertexEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *VertexEmbedder) ModelName() string { return "vertex:" + e.cfg.Model }

func (e *VertexEmbedder) Available(ctx context.Context) bool {
	_, err := e.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}

func (e *VertexEmbedder) Close() error { return nil }
