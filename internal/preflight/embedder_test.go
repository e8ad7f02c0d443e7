package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/docindex/internal/config"
)

func TestChecker_CheckEmbedderCredentials_MissingAPIKey(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedderCredentials(config.EmbeddingsConfig{Provider: "openai"})

	assert.Equal(t, "embedder_credentials", result.Name)
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Required, "embedder credentials check should not be required")
	assert.Contains(t, result.Message, "no API key set")
}

func TestChecker_CheckEmbedderCredentials_APIKeyPresent(t *testing.T) {
	t.Setenv("DOCINDEX_EMBED_API_KEY", "sk-test-not-real")
	checker := New()

	result := checker.CheckEmbedderCredentials(config.EmbeddingsConfig{Provider: "openai"})

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "openai")
}

func TestChecker_CheckEmbedderCredentials_VertexSkipsAPIKey(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedderCredentials(config.EmbeddingsConfig{Provider: "vertex"})

	assert.Equal(t, StatusPass, result.Status)
}
