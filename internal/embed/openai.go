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

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint. The same
// client also serves Azure OpenAI (BaseURL pointed at the deployment) and any
// SageMaker endpoint fronted with an OpenAI-compatible schema.
type OpenAIConfig struct {
	BaseURL    string // e.g. https://api.openai.com/v1
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// AzureAPIVersion, if set, switches auth to the "api-key" header and
	// appends "?api-version=" to the request URL, matching Azure OpenAI.
	AzureAPIVersion string
}

// DefaultOpenAIConfig returns baseline settings; callers fill in credentials.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    DefaultTimeout,
	}
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder validates credentials and constructs the embedder.
// Missing credentials are a configuration error raised at construction time,
// not surfaced lazily on first call.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, docerrors.New(docerrors.ErrCodeMissingCredential,
			"openai embedder requires an API key (DOCINDEX_EMBED_API_KEY)", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type openAIEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) url() string {
	base := strings.TrimRight(e.cfg.BaseURL, "/")
	if e.cfg.AzureAPIVersion != "" {
		return fmt.Sprintf("%s/embeddings?api-version=%s", base, e.cfg.AzureAPIVersion)
	}
	return base + "/embeddings"
}

func (e *OpenAIEmbedder) do(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := openAIEmbeddingRequest{
		Model: e.cfg.Model,
		Input: texts,
	}
	if e.cfg.Dimensions > 0 {
		reqBody.Dimensions = e.cfg.Dimensions
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
	if e.cfg.AzureAPIVersion != "" {
		httpReq.Header.Set("api-key", e.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, docerrors.TransientFetch("embedding request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, docerrors.TransientFetch(fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, body), nil)
	}
	if resp.StatusCode != http.StatusOK {
		var parsed openAIEmbeddingResponse
		msg := string(body)
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if isSizeLimitMessage(msg) {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, msg, nil)
		}
		return nil, docerrors.EmbeddingOther(fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, msg), nil)
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// isSizeLimitMessage recognizes the provider error substrings that indicate
// a request was rejected for exceeding a token/size limit, as opposed to any
// other failure. Used to route to bisection retry instead of failing.
func isSizeLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, substr := range []string{"maximum context length", "input is too long", "token limit", "too large", "exceeds the limit", "max token count"} {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BisectingEmbed(ctx, texts, e.do)
}

func (e *OpenAIEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *OpenAIEmbedder) ModelName() string { return "openai:" + e.cfg.Model }

func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}

func (e *OpenAIEmbedder) Close() error { return nil }
