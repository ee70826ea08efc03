package provider

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies one upstream completion service.
type Kind string

const (
	Anthropic  Kind = "anthropic"
	OpenAI     Kind = "openai"
	Perplexity Kind = "perplexity"
	Google     Kind = "google"
)

// Kinds returns every provider in model resolution order.
func Kinds() []Kind {
	return []Kind{Anthropic, OpenAI, Perplexity, Google}
}

// ParseKind converts a config or CLI value into a Kind.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Kinds() {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unsupported provider %q", raw)
}

// Provider builds and executes completion requests for one upstream service.
type Provider interface {
	Kind() Kind
	// BuildRequest converts a neutral spec into the provider's native request shape.
	BuildRequest(spec RequestSpec) (Request, error)
	// CreateCompletion sends a request built by this provider. Requests built
	// by another provider are rejected.
	CreateCompletion(ctx context.Context, req Request) (*Response, error)
}

// Request is a provider-native completion request.
type Request interface {
	Provider() Kind
	Spec() RequestSpec
}

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an assistant-authored message.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool-result message addressed to the model.
	RoleTool Role = "tool"
	// RoleSystem is an inline system instruction.
	RoleSystem Role = "system"
)

// BlockType is the kind of structured content block.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// Block is one piece of structured message content. Images carry either a
// URL or base64 Data with its MediaType.
type Block struct {
	Type      BlockType `json:"type"`
	Text      string    `json:"text,omitempty"`
	URL       string    `json:"url,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	Data      string    `json:"data,omitempty"`
}

// Message is a single message in model conversation history.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
	// ToolCallID correlates a RoleTool message with the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is set on RoleTool messages for providers that correlate by name.
	ToolName  string     `json:"tool_name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Text returns the message's plain text, flattening text blocks when present.
func (m Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.Blocks)+1)
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, block := range m.Blocks {
		if block.Type == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolConfig describes a callable tool exposed to the model.
type ToolConfig struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model request to execute a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of two usage reports.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// RequestSpec is the provider-agnostic input to BuildRequest.
type RequestSpec struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolConfig
	MaxTokens int
}

// Response is the provider-agnostic completion result.
type Response struct {
	Provider   Kind
	Model      string
	Content    string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// HasToolCalls reports whether the model is waiting on tool results.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

func resolveMaxTokens(requestMaxTokens, configuredMaxTokens int) int {
	if requestMaxTokens > 0 {
		return requestMaxTokens
	}
	return configuredMaxTokens
}

func wrongRequestError(want Kind, req Request) error {
	if req == nil {
		return fmt.Errorf("%s provider: request is nil", want)
	}
	return fmt.Errorf("%s provider cannot execute %s request", want, req.Provider())
}
