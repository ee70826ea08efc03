package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/neoclaw-ai/completions/internal/config"
	"google.golang.org/api/option"
)

// GoogleRequest holds the Gemini chat state: prior turns in History and the
// turn to send in Parts.
type GoogleRequest struct {
	spec            RequestSpec
	System          *genai.Content
	History         []*genai.Content
	Parts           []genai.Part
	Tools           []*genai.Tool
	MaxOutputTokens int32
}

func (r *GoogleRequest) Provider() Kind    { return Google }
func (r *GoogleRequest) Spec() RequestSpec { return r.spec }

type googleProvider struct {
	client    *genai.Client
	maxTokens int
}

// newGoogleProvider creates the Gemini client once; every request of the
// process shares it until Close.
func newGoogleProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("google api key is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &googleProvider{
		client:    client,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Close releases the Gemini client.
func (p *googleProvider) Close() error {
	return p.client.Close()
}

func (p *googleProvider) Kind() Kind { return Google }

// BuildRequest converts the neutral spec into Gemini contents and tools.
func (p *googleProvider) BuildRequest(spec RequestSpec) (Request, error) {
	contents, inlineSystem, err := toGeminiContents(spec.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini request requires at least one message")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("gemini request must end with a user turn, got %q", last.Role)
	}

	req := &GoogleRequest{
		spec:    spec,
		History: contents[:len(contents)-1],
		Parts:   last.Parts,
	}
	if system := joinNonEmpty("\n\n", spec.System, inlineSystem); system != "" {
		req.System = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(spec.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(spec.Tools))
		for _, tool := range spec.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGeminiSchema(tool.Parameters),
			})
		}
		req.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if maxTokens := resolveMaxTokens(spec.MaxTokens, p.maxTokens); maxTokens > 0 {
		req.MaxOutputTokens = int32(min(maxTokens, math.MaxInt32))
	}
	return req, nil
}

// CreateCompletion opens a Gemini chat session on the shared client, seeded
// with the request history, and sends the final turn.
func (p *googleProvider) CreateCompletion(ctx context.Context, req Request) (*Response, error) {
	r, ok := req.(*GoogleRequest)
	if !ok {
		return nil, wrongRequestError(Google, req)
	}

	model := p.client.GenerativeModel(r.spec.Model)
	model.SystemInstruction = r.System
	model.Tools = r.Tools
	if r.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(r.MaxOutputTokens)
	}

	session := model.StartChat()
	session.History = r.History
	resp, err := session.SendMessage(ctx, r.Parts...)
	if err != nil {
		return nil, err
	}
	return fromGeminiResponse(r.spec.Model, resp)
}

func fromGeminiResponse(model string, resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("gemini response has no candidates")
	}

	cand := resp.Candidates[0]
	out := &Response{Provider: Google, Model: model}
	if cand.FinishReason != genai.FinishReasonUnspecified {
		out.StopReason = cand.FinishReason.String()
	}

	var text []string
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				if v != "" {
					text = append(text, string(v))
				}
			case genai.FunctionCall:
				args := v.Args
				if args == nil {
					args = map[string]any{}
				}
				raw, err := json.Marshal(args)
				if err != nil {
					return nil, fmt.Errorf("encode gemini function call args for %s: %w", v.Name, err)
				}
				// Gemini does not assign call ids.
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:        uuid.NewString(),
					Name:      v.Name,
					Arguments: string(raw),
				})
			}
		}
	}
	out.Content = strings.Join(text, "\n")

	if um := resp.UsageMetadata; um != nil {
		out.Usage = TokenUsage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
	}
	return out, nil
}

// toGeminiContents converts history into alternating user/model contents.
// Inline system messages are returned separately for the system instruction.
func toGeminiContents(messages []Message) ([]*genai.Content, string, error) {
	callNames := map[string]string{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	var out []*genai.Content
	var system []string
	appendParts := func(role string, parts ...genai.Part) {
		if len(out) > 0 && out[len(out)-1].Role == role {
			out[len(out)-1].Parts = append(out[len(out)-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Text())
		case RoleUser:
			parts, err := toGeminiParts(msg)
			if err != nil {
				return nil, "", err
			}
			appendParts("user", parts...)
		case RoleAssistant:
			var parts []genai.Part
			if text := msg.Text(); text != "" {
				parts = append(parts, genai.Text(text))
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, "", fmt.Errorf("parse assistant tool call args for %s: %w", tc.Name, err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.Text(""))
			}
			appendParts("model", parts...)
		case RoleTool:
			name := msg.ToolName
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			if name == "" {
				return nil, "", fmt.Errorf("tool message %q has no tool name", msg.ToolCallID)
			}
			appendParts("user", genai.FunctionResponse{Name: name, Response: functionResponse(msg.Text())})
		default:
			return nil, "", fmt.Errorf("unsupported message role %s", msg.Role)
		}
	}
	return out, strings.Join(system, "\n\n"), nil
}

func toGeminiParts(msg Message) ([]genai.Part, error) {
	if len(msg.Blocks) == 0 {
		return []genai.Part{genai.Text(msg.Content)}, nil
	}
	parts := make([]genai.Part, 0, len(msg.Blocks)+1)
	if msg.Content != "" {
		parts = append(parts, genai.Text(msg.Content))
	}
	for _, block := range msg.Blocks {
		if block.Type != BlockImage {
			parts = append(parts, genai.Text(block.Text))
			continue
		}
		if block.Data != "" {
			data, err := base64.StdEncoding.DecodeString(block.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			parts = append(parts, genai.Blob{MIMEType: block.MediaType, Data: data})
			continue
		}
		parts = append(parts, genai.FileData{MIMEType: block.MediaType, URI: block.URL})
	}
	return parts, nil
}

// functionResponse wraps tool output as the object Gemini expects.
func functionResponse(content string) map[string]any {
	var obj map[string]any
	if json.Unmarshal([]byte(content), &obj) == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func toGeminiSchema(schema map[string]any) *genai.Schema {
	if len(schema) == 0 {
		return nil
	}
	out := &genai.Schema{}
	switch schema["type"] {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeObject
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	switch v := schema["enum"].(type) {
	case []string:
		out.Enum = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = toGeminiSchema(items)
	}
	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]any); ok {
				out.Properties[name] = toGeminiSchema(prop)
			}
		}
	}
	out.Required = requiredFields(schema)
	return out
}
