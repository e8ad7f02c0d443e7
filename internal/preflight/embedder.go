package preflight

import (
	"fmt"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
)

// CheckEmbedderCredentials checks whether the configured embedding provider
// has the credentials it needs to authenticate (an API key, for every
// provider except the self-hosted ones that take a bare endpoint URL).
// Missing credentials are non-critical here: the failure surfaces with a
// clearer message once the embedder is actually constructed.
func (c *Checker) CheckEmbedderCredentials(cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{
		Name:     "embedder_credentials",
		Required: false,
	}

	settings := embed.SettingsFromEnv(embed.SettingsFromConfig(cfg))

	switch settings.Provider {
	case embed.ProviderVertex, embed.ProviderSageMaker:
		// Vertex uses an access token that may come from ambient GCP
		// credentials; SageMaker endpoints may be open within a VPC.
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s provider configured", settings.Provider)
		return result
	default:
		if settings.APIKey == "" {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("no API key set for %s provider", settings.Provider)
			result.Details = "Set DOCINDEX_EMBED_API_KEY or the provider's api_key in config.yaml"
			return result
		}
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s provider configured", settings.Provider)
		return result
	}
}
