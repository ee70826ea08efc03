package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/neoclaw-ai/completions/internal/config"
)

const anthropicFallbackMaxTokens = 4096

// AnthropicRequest wraps a native Messages API payload.
type AnthropicRequest struct {
	spec   RequestSpec
	Params anthropic.MessageNewParams
}

func (r *AnthropicRequest) Provider() Kind    { return Anthropic }
func (r *AnthropicRequest) Spec() RequestSpec { return r.spec }

type anthropicProvider struct {
	client    anthropic.Client
	maxTokens int
}

func newAnthropicProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func newAnthropicProviderForTest(apiKey string, maxTokens int, baseURL string, httpClient *http.Client) (*anthropicProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	}
	return &anthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
	}, nil
}

func (p *anthropicProvider) Kind() Kind { return Anthropic }

// BuildRequest converts the neutral spec into MessageNewParams.
func (p *anthropicProvider) BuildRequest(spec RequestSpec) (Request, error) {
	msgs, inlineSystem, err := toAnthropicMessages(spec.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := resolveMaxTokens(spec.MaxTokens, p.maxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicFallbackMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(spec.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}

	system := joinNonEmpty("\n\n", spec.System, inlineSystem)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         system,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}
	if len(spec.Tools) > 0 {
		params.Tools = toAnthropicTools(spec.Tools)
	}
	return &AnthropicRequest{spec: spec, Params: params}, nil
}

// CreateCompletion sends the request to Anthropic and normalizes the response.
func (p *anthropicProvider) CreateCompletion(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(*AnthropicRequest)
	if !ok {
		return nil, wrongRequestError(Anthropic, req)
	}

	msg, err := p.client.Messages.New(ctx, r.Params)
	if err != nil {
		return nil, err
	}

	var contentParts []string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if v.Text != "" {
				contentParts = append(contentParts, v.Text)
			}
		case anthropic.ToolUseBlock:
			calls = append(calls, ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: string(v.Input),
			})
		}
	}

	usage := TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &Response{
		Provider:   Anthropic,
		Model:      string(msg.Model),
		Content:    strings.Join(contentParts, "\n"),
		ToolCalls:  calls,
		Usage:      usage,
		StopReason: string(msg.StopReason),
	}, nil
}

// toAnthropicMessages converts history and returns inline system text
// separately, since Anthropic only accepts a top-level system prompt.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	for i := 0; i < len(messages); {
		msg := messages[i]
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Text())
			i++
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(toAnthropicContent(msg)...))
			i++
		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if text := msg.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				input := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, "", fmt.Errorf("parse assistant tool call args for %s: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			i++
		case RoleTool:
			// Anthropic requires all tool results from one assistant turn in a
			// single user message. Collect consecutive RoleTool entries.
			var blocks []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == RoleTool {
				if messages[i].ToolCallID == "" {
					return nil, "", fmt.Errorf("tool message requires tool_call_id")
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Text(), false))
				i++
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		default:
			return nil, "", fmt.Errorf("unsupported message role %s", msg.Role)
		}
	}
	applyHistoryCacheBreakpoint(out)
	return out, strings.Join(system, "\n\n"), nil
}

func toAnthropicContent(msg Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Blocks) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}
	out := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks)+1)
	if msg.Content != "" {
		out = append(out, anthropic.NewTextBlock(msg.Content))
	}
	for _, block := range msg.Blocks {
		switch block.Type {
		case BlockImage:
			if block.Data != "" {
				out = append(out, anthropic.NewImageBlockBase64(block.MediaType, block.Data))
			} else if block.URL != "" {
				out = append(out, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: block.URL}))
			}
		default:
			out = append(out, anthropic.NewTextBlock(block.Text))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropic.NewTextBlock(""))
	}
	return out
}

// applyHistoryCacheBreakpoint marks the second-to-last message block as a cache
// breakpoint so the latest message remains uncached while the full prior prefix
// can be reused.
func applyHistoryCacheBreakpoint(messages []anthropic.MessageParam) {
	if len(messages) < 2 {
		return
	}
	addCacheControlToLastBlock(&messages[len(messages)-2])
}

func addCacheControlToLastBlock(message *anthropic.MessageParam) {
	if message == nil || len(message.Content) == 0 {
		return
	}
	block := &message.Content[len(message.Content)-1]
	cacheControl := anthropic.NewCacheControlEphemeralParam()

	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = cacheControl
	case block.OfImage != nil:
		block.OfImage.CacheControl = cacheControl
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = cacheControl
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = cacheControl
	}
}

func toAnthropicTools(tools []ToolConfig) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: toAnthropicInputSchema(tool.Parameters),
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

func toAnthropicInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	if len(schema) == 0 {
		return anthropic.ToolInputSchemaParam{}
	}

	inputSchema := anthropic.ToolInputSchemaParam{
		Required: requiredFields(schema),
	}
	if props, ok := schema["properties"]; ok {
		inputSchema.Properties = props
	}

	extras := make(map[string]any)
	for k, v := range schema {
		if k == "properties" || k == "required" || k == "type" {
			continue
		}
		extras[k] = v
	}
	if len(extras) > 0 {
		inputSchema.ExtraFields = extras
	}

	return inputSchema
}

func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		required := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
		return required
	default:
		return nil
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
