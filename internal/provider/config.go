package provider

import (
	"fmt"
	"strings"
)

// Validate reports the first missing required setting for the selected
// backend, naming the environment variable that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for ollama backend")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: ollama, openai, azure, gemini, ark)", c.Backend)
	}
	return nil
}

// ModelName returns the model the config selects, for logging.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// isAzureReasoningModel reports whether deployment names an o-series or
// codex deployment. These reject max_tokens and temperature.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

// Default public endpoints probed when the config leaves the base URL unset.
const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/models"
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/"
	defaultArkEndpoint    = "https://ark.cn-beijing.volces.com/api/v3"
)

// Endpoint returns the URL a readiness probe should reach for the selected
// backend. It is never called with credentials.
func (c *Config) Endpoint() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Host
	case BackendOpenAI:
		if c.OpenAI.BaseURL != "" {
			return c.OpenAI.BaseURL
		}
		return defaultOpenAIEndpoint
	case BackendAzure:
		return c.AzureOpenAI.Endpoint
	case BackendGemini:
		return defaultGeminiEndpoint
	case BackendArk:
		if c.Ark.BaseURL != "" {
			return c.Ark.BaseURL
		}
		return defaultArkEndpoint
	}
	return ""
}
