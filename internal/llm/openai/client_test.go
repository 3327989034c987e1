package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
)

func TestGenerateText_ServerReturnsChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	text, usage, err := cli.GenerateText(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Equal(t, 4, usage.TotalTokens)
}

func TestGenerateObject_SendsJSONSchemaResponseFormat(t *testing.T) {
	var gotResponseFormat map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotResponseFormat, _ = body["response_format"].(map[string]any)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"t\"}"}}],"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`))
	}))
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	schema := map[string]any{"type": "object", "properties": map[string]any{"title": map[string]any{"type": "string"}}}
	raw, usage, err := cli.GenerateObject(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, "planner_action", schema)
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"t"}`, string(raw))
	require.Equal(t, 4, usage.TotalTokens)
	require.Equal(t, "json_schema", gotResponseFormat["type"])
}

func TestGenerateText_NoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}, srv.Client())
	_, _, err := cli.GenerateText(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)
}

func TestModel_ReturnsConfiguredModel(t *testing.T) {
	cli := New(config.OpenAIConfig{APIKey: "test", Model: "gpt-4o-mini"}, nil)
	require.Equal(t, "gpt-4o-mini", cli.Model())
}

func TestNew_DefaultsModelWhenUnset(t *testing.T) {
	cli := New(config.OpenAIConfig{APIKey: "test"}, nil)
	require.Equal(t, "gpt-4o-mini", cli.Model())
}
