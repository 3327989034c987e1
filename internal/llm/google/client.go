// Package google implements the Model Gateway against the Gemini API.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/observability"
)

// Client implements llm.Gateway against the Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	httpOptions genai.HTTPOptions
}

// New builds a Gemini-backed Gateway client.
func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model, httpOptions: httpOpts}, nil
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

func toContents(msgs []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			// System instructions are threaded in via GenerateContentConfig,
			// not as a content turn.
			continue
		}
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func systemInstruction(msgs []llm.Message) *genai.Content {
	var sb strings.Builder
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(m.Content)
		}
	}
	if sb.Len() == 0 {
		return nil
	}
	return genai.NewContentFromText(sb.String(), genai.RoleUser)
}

// GenerateText produces a single text completion for the given messages.
func (c *Client) GenerateText(ctx context.Context, msgs []llm.Message) (string, llm.Usage, error) {
	ctx, span := llm.StartRequestSpan(ctx, "google.GenerateText", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	cfg := &genai.GenerateContentConfig{HTTPOptions: &c.httpOptions, SystemInstruction: systemInstruction(msgs)}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(msgs), cfg)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("google_generate_text_error")
		return "", llm.Usage{}, fmt.Errorf("google generate text: %w", err)
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	log.Debug().Str("model", c.model).Dur("duration", dur).Int("total_tokens", usage.TotalTokens).Msg("google_generate_text_ok")
	return resp.Text(), usage, nil
}

// GenerateObject produces a completion constrained to the given JSON schema,
// using Gemini's native JSON response mode.
func (c *Client) GenerateObject(ctx context.Context, msgs []llm.Message, schemaName string, schema map[string]any) ([]byte, llm.Usage, error) {
	ctx, span := llm.StartRequestSpan(ctx, "google.GenerateObject", c.model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	cfg := &genai.GenerateContentConfig{
		HTTPOptions:       &c.httpOptions,
		SystemInstruction: systemInstruction(msgs),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schemaToGenai(schema),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, toContents(msgs), cfg)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("google_generate_object_error")
		return nil, llm.Usage{}, fmt.Errorf("google generate object: %w", err)
	}

	llm.LogRedactedResponse(ctx, resp)
	usage := usageFrom(resp)
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	llm.RecordTokenMetrics(c.model, usage.PromptTokens, usage.CompletionTokens)

	log.Debug().Str("model", c.model).Str("schema", schemaName).Dur("duration", dur).Msg("google_generate_object_ok")
	return []byte(resp.Text()), usage, nil
}

// StreamText streams incremental text deltas for the given messages.
func (c *Client) StreamText(ctx context.Context, msgs []llm.Message) (<-chan llm.TextDelta, error) {
	ctx, span := llm.StartRequestSpan(ctx, "google.StreamText", c.model, len(msgs))
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	cfg := &genai.GenerateContentConfig{HTTPOptions: &c.httpOptions, SystemInstruction: systemInstruction(msgs)}
	stream := c.client.Models.GenerateContentStream(ctx, c.model, toContents(msgs), cfg)

	out := make(chan llm.TextDelta)
	go func() {
		defer close(out)
		defer span.End()

		var usage llm.Usage
		for resp, err := range stream {
			if err != nil {
				span.RecordError(err)
				log.Error().Err(err).Str("model", c.model).Msg("google_stream_text_error")
				break
			}
			if u := usageFrom(resp); u.TotalTokens > 0 {
				usage = u
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case out <- llm.TextDelta{Text: text}:
			case <-ctx.Done():
				return
			}
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

func usageFrom(resp *genai.GenerateContentResponse) llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

// schemaToGenai converts a plain JSON-schema map (as used by the other two
// Gateway backends) into genai's typed Schema representation. Only the
// subset the research pipeline's structured prompts use is supported:
// object/string/number/boolean/array with nested properties.
func schemaToGenai(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genaiType(t)
	}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if child, ok := v.(map[string]any); ok {
				s.Properties[k] = schemaToGenai(child)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaToGenai(items)
	}
	return s
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

var _ llm.Gateway = (*Client)(nil)
