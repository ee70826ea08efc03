package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/neoclaw-ai/completions/internal/config"
)

const defaultPerplexityURL = "https://api.perplexity.ai/chat/completions"

// PerplexityRequest wraps the chat completions JSON body Perplexity accepts.
type PerplexityRequest struct {
	spec RequestSpec
	Body perplexityBody
}

func (r *PerplexityRequest) Provider() Kind    { return Perplexity }
func (r *PerplexityRequest) Spec() RequestSpec { return r.spec }

type perplexityProvider struct {
	apiKey     string
	maxTokens  int
	endpoint   string
	httpClient *http.Client
}

func newPerplexityProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("perplexity api key is required")
	}
	endpoint := defaultPerplexityURL
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	}
	return &perplexityProvider{
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

func newPerplexityProviderForTest(apiKey string, maxTokens int, endpoint string, httpClient *http.Client) (*perplexityProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("perplexity api key is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("perplexity endpoint is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &perplexityProvider{
		apiKey:     apiKey,
		maxTokens:  maxTokens,
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}

func (p *perplexityProvider) Kind() Kind { return Perplexity }

// BuildRequest converts the neutral spec into a Perplexity chat body.
// Perplexity offers no function calling, so tools and tool history are rejected.
func (p *perplexityProvider) BuildRequest(spec RequestSpec) (Request, error) {
	if len(spec.Tools) > 0 {
		return nil, errors.New("perplexity does not support tools")
	}
	body := perplexityBody{
		Model:     spec.Model,
		MaxTokens: resolveMaxTokens(spec.MaxTokens, p.maxTokens),
	}
	if spec.System != "" {
		body.Messages = append(body.Messages, perplexityMessage{Role: string(RoleSystem), Content: spec.System})
	}
	for _, msg := range spec.Messages {
		if msg.Role == RoleTool || len(msg.ToolCalls) > 0 {
			return nil, errors.New("perplexity does not support tool messages")
		}
		body.Messages = append(body.Messages, perplexityMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		})
	}
	return &PerplexityRequest{spec: spec, Body: body}, nil
}

// CreateCompletion posts the request to Perplexity and normalizes the response.
func (p *perplexityProvider) CreateCompletion(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(*PerplexityRequest)
	if !ok {
		return nil, wrongRequestError(Perplexity, req)
	}

	body, err := json.Marshal(r.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal perplexity request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build perplexity request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("perplexity request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read perplexity response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &HTTPError{
			Provider:   Perplexity,
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var parsed perplexityResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode perplexity response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("perplexity response has no choices")
	}

	choice := parsed.Choices[0]
	return &Response{
		Provider: Perplexity,
		Model:    parsed.Model,
		Content:  choice.Message.Content,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
		StopReason: choice.FinishReason,
	}, nil
}

// HTTPError is a non-2xx reply from a provider reached over plain HTTP.
type HTTPError struct {
	Provider   Kind
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

type perplexityBody struct {
	Model     string              `json:"model"`
	Messages  []perplexityMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      perplexityMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
