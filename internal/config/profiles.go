package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelProfile is one named LLM backend preset, the YAML analogue of setting
// LLM_PROVIDER plus the matching provider's model/base URL env vars by hand;
// a profile carries no API key. Operators list presets once in a profiles file
// and switch between them with LLM_PROFILE instead of re-exporting a handful
// of variables.
type ModelProfile struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// modelProfilesFile is the on-disk shape: a map of profile name to preset.
type modelProfilesFile struct {
	Profiles map[string]ModelProfile `yaml:"profiles"`
}

// applyModelProfile overlays the profile named by LLM_PROFILE, read from
// MODEL_PROFILES_FILE (default "model_profiles.yaml"), onto cfg.LLM. A
// missing file is not an error: profiles are opt-in. Values already set by
// LLM_PROVIDER/_MODEL/_BASE_URL env vars are left untouched, so the profile
// only fills gaps the environment didn't already specify.
func applyModelProfile(cfg *Config) error {
	profileName := strings.TrimSpace(os.Getenv("LLM_PROFILE"))
	if profileName == "" {
		return nil
	}

	path := firstNonEmpty(strings.TrimSpace(os.Getenv("MODEL_PROFILES_FILE")), "model_profiles.yaml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read model profiles file: %w", err)
	}

	var file modelProfilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("config: parse model profiles file: %w", err)
	}

	profile, ok := file.Profiles[profileName]
	if !ok {
		return fmt.Errorf("config: model profile %q not found in %s", profileName, path)
	}

	if strings.TrimSpace(os.Getenv("LLM_PROVIDER")) == "" && profile.Provider != "" {
		cfg.LLM.Provider = profile.Provider
	}
	applyProviderProfileDefaults(cfg, profile)
	return nil
}

func applyProviderProfileDefaults(cfg *Config, profile ModelProfile) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "anthropic":
		if strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")) == "" && profile.Model != "" {
			cfg.LLM.Anthropic.Model = profile.Model
		}
		if strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")) == "" && profile.BaseURL != "" {
			cfg.LLM.Anthropic.BaseURL = profile.BaseURL
		}
	case "google":
		if strings.TrimSpace(os.Getenv("GOOGLE_MODEL")) == "" && profile.Model != "" {
			cfg.LLM.Google.Model = profile.Model
		}
		if strings.TrimSpace(os.Getenv("GOOGLE_BASE_URL")) == "" && profile.BaseURL != "" {
			cfg.LLM.Google.BaseURL = profile.BaseURL
		}
	default:
		if strings.TrimSpace(os.Getenv("OPENAI_MODEL")) == "" && profile.Model != "" {
			cfg.LLM.OpenAI.Model = profile.Model
		}
		if strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")) == "" && profile.BaseURL != "" {
			cfg.LLM.OpenAI.BaseURL = profile.BaseURL
		}
	}
}
