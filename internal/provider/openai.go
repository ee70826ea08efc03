package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/sashabaranov/go-openai"
)

// OpenAIRequest wraps a native chat completion payload.
type OpenAIRequest struct {
	spec    RequestSpec
	Payload openai.ChatCompletionRequest
}

func (r *OpenAIRequest) Provider() Kind    { return OpenAI }
func (r *OpenAIRequest) Spec() RequestSpec { return r.spec }

type openAIProvider struct {
	client    *openai.Client
	maxTokens int
}

func newOpenAIProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	return &openAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func newOpenAIProviderForTest(apiKey string, maxTokens int, baseURL string, httpClient *http.Client) (*openAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("openai base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL
	clientCfg.HTTPClient = httpClient
	return &openAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		maxTokens: maxTokens,
	}, nil
}

func (p *openAIProvider) Kind() Kind { return OpenAI }

// BuildRequest converts the neutral spec into a ChatCompletionRequest.
func (p *openAIProvider) BuildRequest(spec RequestSpec) (Request, error) {
	payload := openai.ChatCompletionRequest{
		Model:     spec.Model,
		Messages:  toOpenAIMessages(spec.Messages),
		MaxTokens: resolveMaxTokens(spec.MaxTokens, p.maxTokens),
	}
	if spec.System != "" {
		payload.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: spec.System,
		}}, payload.Messages...)
	}
	if len(spec.Tools) > 0 {
		payload.Tools = make([]openai.Tool, 0, len(spec.Tools))
		for _, tool := range spec.Tools {
			payload.Tools = append(payload.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			})
		}
	}
	return &OpenAIRequest{spec: spec, Payload: payload}, nil
}

// CreateCompletion sends the request to OpenAI and normalizes the response.
func (p *openAIProvider) CreateCompletion(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(*OpenAIRequest)
	if !ok {
		return nil, wrongRequestError(OpenAI, req)
	}

	resp, err := p.client.CreateChatCompletion(ctx, r.Payload)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	choice := resp.Choices[0]
	toolCalls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Response{
		Provider:  OpenAI,
		Model:     resp.Model,
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: string(choice.FinishReason),
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{Role: string(msg.Role)}
		if hasImages(msg) {
			m.MultiContent = toOpenAIParts(msg)
		} else {
			m.Content = msg.Text()
		}
		if msg.Role == RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			m.ToolCalls = make([]openai.ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		out = append(out, m)
	}
	return out
}

func toOpenAIParts(msg Message) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(msg.Blocks)+1)
	if msg.Content != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
	}
	for _, block := range msg.Blocks {
		if block.Type != BlockImage {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.Text})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    imageURL(block),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return parts
}

func hasImages(msg Message) bool {
	for _, block := range msg.Blocks {
		if block.Type == BlockImage {
			return true
		}
	}
	return false
}

// imageURL returns the block URL, or a data URL for inline images.
func imageURL(block Block) string {
	if block.URL != "" {
		return block.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", block.MediaType, block.Data)
}
