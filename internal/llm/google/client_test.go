package google

import (
	"testing"

	genai "google.golang.org/genai"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/config"
)

func TestNew_DefaultsModelWhenUnset(t *testing.T) {
	cli, err := New(config.GoogleConfig{APIKey: "test"}, nil)
	require.NoError(t, err)
	require.Equal(t, "gemini-1.5-flash", cli.Model())
}

func TestSchemaToGenai_ConvertsNestedObjectSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"steps": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"title"},
	}

	s := schemaToGenai(schema)
	require.Equal(t, genai.TypeObject, s.Type)
	require.Equal(t, []string{"title"}, s.Required)
	require.Equal(t, genai.TypeString, s.Properties["title"].Type)
	require.Equal(t, genai.TypeArray, s.Properties["steps"].Type)
	require.Equal(t, genai.TypeString, s.Properties["steps"].Items.Type)
}

func TestGenaiType_UnknownFallsBackToUnspecified(t *testing.T) {
	require.Equal(t, genai.TypeUnspecified, genaiType("unknown"))
}
