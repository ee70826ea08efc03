// Package completion resolves a model to its provider, builds and executes
// requests, and satisfies tool calls until the model produces a final answer.
package completion

import (
	"errors"
	"fmt"

	"github.com/neoclaw-ai/completions/internal/catalog"
	"github.com/neoclaw-ai/completions/internal/provider"
)

// StubMessage replaces an empty history so every provider sees one turn.
var StubMessage = provider.Message{Role: provider.RoleUser, Content: "."}

// Builder turns a neutral conversation into a provider-specific request.
type Builder struct {
	providers map[provider.Kind]provider.Provider
	tools     *catalog.Tools
}

// NewBuilder builds requests for providers using tool configs from tools.
func NewBuilder(providers map[provider.Kind]provider.Provider, tools *catalog.Tools) *Builder {
	return &Builder{providers: providers, tools: tools}
}

// Build resolves toolNames against kind's catalog and asks kind's provider
// for its request shape. The request shape depends only on kind.
func (b *Builder) Build(kind provider.Kind, system string, messages []provider.Message, model string, toolNames []string) (provider.Request, error) {
	p, ok := b.providers[kind]
	if !ok || p == nil {
		return nil, fmt.Errorf("provider %s is not configured", kind)
	}

	toolConfigs, err := b.tools.ResolveAll(kind, toolNames)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownTool) {
			return nil, newError(CodeUnexpectedTool, "build request", err)
		}
		return nil, err
	}

	req, err := p.BuildRequest(provider.RequestSpec{
		Model:    model,
		System:   system,
		Messages: withStub(messages),
		Tools:    toolConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", kind, err)
	}
	return req, nil
}

// withStub returns a copy of messages, or the stub history when empty.
func withStub(messages []provider.Message) []provider.Message {
	if len(messages) == 0 {
		return []provider.Message{StubMessage}
	}
	return append([]provider.Message(nil), messages...)
}
