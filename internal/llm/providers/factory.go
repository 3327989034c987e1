// Package providers selects and constructs the configured Gateway backend.
package providers

import (
	"fmt"
	"net/http"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/llm/anthropic"
	"deepresearch/internal/llm/google"
	openaillm "deepresearch/internal/llm/openai"
)

// Build constructs an llm.Gateway based on the configured provider name.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Gateway, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "google":
		return google.New(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
