package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderAzure, ParseProvider("azure"))
	assert.Equal(t, ProviderVertex, ParseProvider("Vertex"))
	assert.Equal(t, ProviderGemini, ParseProvider("gemini"))
	assert.Equal(t, ProviderBedrock, ParseProvider("bedrock"))
	assert.Equal(t, ProviderSageMaker, ParseProvider("sagemaker"))
	assert.Equal(t, ProviderOpenAI, ParseProvider("openai"))
	assert.Equal(t, ProviderOpenAI, ParseProvider("unknown"), "unrecognized providers default to openai")
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("OpenAI"))
	assert.False(t, IsValidProvider("made-up"))
}

func TestNewEmbedder_MissingCredentialIsConstructionError(t *testing.T) {
	_, err := NewEmbedder(Settings{Provider: ProviderOpenAI})
	require.Error(t, err, "missing API key must fail at construction, not on first call")
}

func TestNewEmbedder_VertexRequiresProjectAndToken(t *testing.T) {
	_, err := NewEmbedder(Settings{Provider: ProviderVertex, APIKey: "token-only"})
	require.Error(t, err)

	_, err = NewEmbedder(Settings{Provider: ProviderVertex, Project: "proj-only"})
	require.Error(t, err)
}

func TestSettingsFromEnv_OverridesBase(t *testing.T) {
	t.Setenv("DOCINDEX_EMBED_PROVIDER", "gemini")
	t.Setenv("DOCINDEX_EMBED_MODEL", "text-embedding-004")
	t.Setenv("DOCINDEX_EMBED_API_KEY", "secret")

	s := SettingsFromEnv(Settings{Provider: ProviderOpenAI, Model: "text-embedding-3-small"})
	assert.Equal(t, ProviderGemini, s.Provider)
	assert.Equal(t, "text-embedding-004", s.Model)
	assert.Equal(t, "secret", s.APIKey)
}

func TestBisectingEmbed_SplitsOnSizeError(t *testing.T) {
	ctx := context.Background()
	var callSizes []int
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		callSizes = append(callSizes, len(texts))
		if len(texts) > 1 {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, "maximum context length exceeded", nil)
		}
		return [][]float32{{1, 2, 3}}, nil
	}

	out, err := BisectingEmbed(ctx, []string{"a", "b", "c", "d"}, fn)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Greater(t, len(callSizes), 1, "a size error must trigger bisection into smaller sub-batches")
}

func TestBisectingEmbed_TruncatesSingleOversizedText(t *testing.T) {
	ctx := context.Background()
	huge := make([]byte, 5000)
	for i := range huge {
		huge[i] = 'a'
	}
	attempts := 0
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, docerrors.New(docerrors.ErrCodeEmbeddingSize, "input is too long", nil)
		}
		return [][]float32{{0.1}}, nil
	}

	out, err := BisectingEmbed(ctx, []string{string(huge)}, fn)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, attempts, "single oversized text is retried exactly once after truncation")
}
