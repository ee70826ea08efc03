// Package tools defines the Tool interface, the per-provider Registry, and
// the built-in tools a completion can offer to a model.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/neoclaw-ai/completions/internal/provider"
)

const defaultInlineOutputChars = 4000

// Tool is an executable capability the model can call by name.
type Tool interface {
	Name() string
	Execute(ctx context.Context, call Call) (*Result, error)
}

// Call is one model-issued tool invocation with its request context.
type Call struct {
	Provider           provider.Kind
	AccountID          string
	ConversationPartID string
	ToolCallID         string
	// Arguments is the raw JSON object the model produced.
	Arguments string
}

// Result is the normalized output returned by tools.
type Result struct {
	Output    string
	Truncated bool
}

// Truncate bounds output to limit runes, marking the result when cut.
func Truncate(output string, limit int) *Result {
	if limit <= 0 {
		limit = defaultInlineOutputChars
	}
	if utf8.RuneCountInString(output) <= limit {
		return &Result{Output: output}
	}

	var b strings.Builder
	count := 0
	for _, r := range output {
		if count >= limit {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteString("\n[output truncated]")
	return &Result{Output: b.String(), Truncated: true}
}

// Registry stores tools per provider, keyed by unique name.
type Registry struct {
	byKind map[provider.Kind]map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[provider.Kind]map[string]Tool)}
}

// Register adds a tool for one provider.
func (r *Registry) Register(kind provider.Kind, tool Tool) error {
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	byName, ok := r.byKind[kind]
	if !ok {
		byName = make(map[string]Tool)
		r.byKind[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("tool %s already registered for %s", name, kind)
	}
	byName[name] = tool
	return nil
}

// RegisterShared adds the same implementation for several providers.
func (r *Registry) RegisterShared(tool Tool, kinds ...provider.Kind) error {
	for _, kind := range kinds {
		if err := r.Register(kind, tool); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the tool registered under name for kind.
func (r *Registry) Lookup(kind provider.Kind, name string) (Tool, bool) {
	tool, ok := r.byKind[kind][name]
	return tool, ok
}

// Names returns the tool names registered for kind in stable order.
func (r *Registry) Names(kind provider.Kind) []string {
	names := make([]string, 0, len(r.byKind[kind]))
	for name := range r.byKind[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeArgs unmarshals a call's JSON arguments into T. Empty arguments
// decode to the zero value.
func decodeArgs[T any](call Call) (T, error) {
	var args T
	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("parse tool arguments: %w", err)
	}
	return args, nil
}

func requireString(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return value, nil
}
