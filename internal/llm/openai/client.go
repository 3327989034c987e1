// Package openai implements the Model Gateway against the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/observability"
)

// Client implements llm.Gateway against the OpenAI Chat Completions API.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds an OpenAI-backed Gateway client.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		sdk:   sdk.NewClient(opts...),
		model: model,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

// GenerateText produces a single text completion for the given messages.
func (c *Client) GenerateText(ctx context.Context, msgs []llm.Message) (string, llm.Usage, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(msgs),
	}

	ctx, span := llm.StartRequestSpan(ctx, "openai.GenerateText", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_generate_text_error")
		return "", llm.Usage{}, fmt.Errorf("openai generate text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.Usage{}, fmt.Errorf("openai generate text: no choices returned")
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp.Usage)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	log.Debug().Str("model", c.model).Dur("duration", dur).Int("total_tokens", usage.TotalTokens).Msg("openai_generate_text_ok")
	return resp.Choices[0].Message.Content, usage, nil
}

// GenerateObject produces a completion constrained to the given JSON schema.
func (c *Client) GenerateObject(ctx context.Context, msgs []llm.Message, schemaName string, schema map[string]any) ([]byte, llm.Usage, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(msgs),
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: sdk.Bool(true),
				},
			},
		},
	}

	ctx, span := llm.StartRequestSpan(ctx, "openai.GenerateObject", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("openai_generate_object_error")
		return nil, llm.Usage{}, fmt.Errorf("openai generate object: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.Usage{}, fmt.Errorf("openai generate object: no choices returned")
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp.Usage)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	log.Debug().Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("openai_generate_object_ok")
	return []byte(resp.Choices[0].Message.Content), usage, nil
}

// StreamText streams incremental text deltas for the given messages.
func (c *Client) StreamText(ctx context.Context, msgs []llm.Message) (<-chan llm.TextDelta, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptMessages(msgs),
		StreamOptions: sdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: sdk.Bool(true),
		},
	}

	ctx, span := llm.StartRequestSpan(ctx, "openai.StreamText", c.model, len(msgs))
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan llm.TextDelta)
	go func() {
		defer close(out)
		defer span.End()

		var usage llm.Usage
		for stream.Next() {
			chunk := stream.Current()
			if u := usageFrom(chunk.Usage); u.TotalTokens > 0 {
				usage = u
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- llm.TextDelta{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("model", c.model).Msg("openai_stream_text_error")
		}
		llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
		llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)
		select {
		case out <- llm.TextDelta{Done: true, Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func usageFrom(u sdk.CompletionUsage) llm.Usage {
	return llm.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

var _ llm.Gateway = (*Client)(nil)
