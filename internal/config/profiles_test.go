package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesModelProfileWhenSelected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  fast:
    provider: anthropic
    model: claude-3-7-sonnet-latest
    base_url: https://example.test/v1
`), 0o644))

	for _, key := range []string{"LLM_PROVIDER", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("LLM_PROFILE", "fast")
	t.Setenv("MODEL_PROFILES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLM.Provider)
	require.Equal(t, "claude-3-7-sonnet-latest", cfg.LLM.Anthropic.Model)
	require.Equal(t, "https://example.test/v1", cfg.LLM.Anthropic.BaseURL)
}

func TestLoad_EnvOverridesModelProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  fast:
    provider: anthropic
    model: claude-3-7-sonnet-latest
`), 0o644))

	t.Setenv("LLM_PROFILE", "fast")
	t.Setenv("MODEL_PROFILES_FILE", path)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
}

func TestLoad_UnknownModelProfileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: {}\n"), 0o644))

	t.Setenv("LLM_PROFILE", "missing")
	t.Setenv("MODEL_PROFILES_FILE", path)

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_NoProfileSelectedIsNoOp(t *testing.T) {
	t.Setenv("LLM_PROFILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.LLM.Provider)
}
