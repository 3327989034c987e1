package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/config"
)

func TestBuild_DefaultsToOpenAI(t *testing.T) {
	gw, err := Build(config.LLMConfig{OpenAI: config.OpenAIConfig{APIKey: "k", Model: "m"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "m", gw.Model())
}

func TestBuild_SelectsAnthropic(t *testing.T) {
	gw, err := Build(config.LLMConfig{Provider: "anthropic", Anthropic: config.AnthropicConfig{APIKey: "k", Model: "claude-x"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "claude-x", gw.Model())
}

func TestBuild_SelectsGoogle(t *testing.T) {
	gw, err := Build(config.LLMConfig{Provider: "google", Google: config.GoogleConfig{APIKey: "k", Model: "gemini-x"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "gemini-x", gw.Model())
}

func TestBuild_UnknownProviderErrors(t *testing.T) {
	_, err := Build(config.LLMConfig{Provider: "bogus"}, nil)
	require.Error(t, err)
}
