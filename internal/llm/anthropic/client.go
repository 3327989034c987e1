// Package anthropic implements the Model Gateway against the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/observability"
)

const defaultMaxTokens int64 = 4096

// Client implements llm.Gateway against the Anthropic Messages API.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	cacheCfg  config.AnthropicPromptCacheConfig
}

// New builds an Anthropic-backed Gateway client.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
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
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		cacheCfg:  cfg.PromptCache,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

func adaptMessages(msgs []llm.Message, cacheCfg config.AnthropicPromptCacheConfig) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	cacheSystem := cacheCfg.Enabled && cacheCfg.CacheSystem
	cacheControl := anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if cacheSystem {
				system = append(system, anthropic.TextBlockParam{Text: m.Content, CacheControl: cacheControl})
			} else {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case llm.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

// GenerateText produces a single text completion for the given messages.
func (c *Client) GenerateText(ctx context.Context, msgs []llm.Message) (string, llm.Usage, error) {
	sys, converted := adaptMessages(msgs, c.cacheCfg)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		System:    sys,
		MaxTokens: c.maxTokens,
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.GenerateText", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_generate_text_error")
		return "", llm.Usage{}, fmt.Errorf("anthropic generate text: %w", err)
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp.Usage)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	log.Debug().Str("model", c.model).Dur("duration", dur).Int("total_tokens", usage.TotalTokens).Msg("anthropic_generate_text_ok")
	return textFromResponse(resp), usage, nil
}

// GenerateObject produces a completion constrained to the given JSON schema.
// Anthropic has no native structured-output response format, so the schema
// is expressed as a single forced tool call and the tool's input is returned
// as the object.
func (c *Client) GenerateObject(ctx context.Context, msgs []llm.Message, schemaName string, schema map[string]any) ([]byte, llm.Usage, error) {
	sys, converted := adaptMessages(msgs, c.cacheCfg)

	toolSchema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
	extras := map[string]any{}
	for k, v := range schema {
		extras[k] = v
	}
	if props, ok := extras["properties"]; ok {
		toolSchema.Properties = props
		delete(extras, "properties")
	}
	if req, ok := extras["required"]; ok {
		delete(extras, "required")
		if items, ok := req.([]any); ok {
			for _, item := range items {
				if s, ok := item.(string); ok {
					toolSchema.Required = append(toolSchema.Required, s)
				}
			}
		}
	}
	delete(extras, "type")
	if len(extras) > 0 {
		toolSchema.ExtraFields = extras
	}

	tool := anthropic.ToolParam{Name: schemaName, InputSchema: toolSchema}
	params := anthropic.MessageNewParams{
		Model:      anthropic.Model(c.model),
		Messages:   converted,
		System:     sys,
		MaxTokens:  c.maxTokens,
		Tools:      []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(schemaName),
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.GenerateObject", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("anthropic_generate_object_error")
		return nil, llm.Usage{}, fmt.Errorf("anthropic generate object: %w", err)
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp.Usage)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	for _, block := range resp.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			raw, err := json.Marshal(tu.Input)
			if err != nil {
				return nil, usage, fmt.Errorf("anthropic generate object: marshal tool input: %w", err)
			}
			log.Debug().Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("anthropic_generate_object_ok")
			return raw, usage, nil
		}
	}
	return nil, usage, fmt.Errorf("anthropic generate object: no tool use block in response")
}

// StreamText streams incremental text deltas for the given messages.
func (c *Client) StreamText(ctx context.Context, msgs []llm.Message) (<-chan llm.TextDelta, error) {
	sys, converted := adaptMessages(msgs, c.cacheCfg)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		System:    sys,
		MaxTokens: c.maxTokens,
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.StreamText", c.model, len(msgs))
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Messages.NewStreaming(ctx, params)

	out := make(chan llm.TextDelta)
	go func() {
		defer close(out)
		defer span.End()

		var usage llm.Usage
		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				continue
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
					select {
					case out <- llm.TextDelta{Text: td.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("model", c.model).Msg("anthropic_stream_text_error")
		}
		usage = usageFrom(acc.Usage)
		llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
		llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)
		select {
		case out <- llm.TextDelta{Done: true, Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func textFromResponse(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

func usageFrom(u anthropic.Usage) llm.Usage {
	prompt := int(u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens)
	completion := int(u.OutputTokens)
	return llm.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

var _ llm.Gateway = (*Client)(nil)
