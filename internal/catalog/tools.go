package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/tools"
)

// ErrUnknownTool is returned when a provider does not offer a tool name.
var ErrUnknownTool = errors.New("unknown tool")

// Tools maps provider -> tool name -> tool config. It is read-only after
// construction and safe for concurrent use.
type Tools struct {
	byKind map[provider.Kind]map[string]provider.ToolConfig
}

// NewTools indexes per-provider tool configs, rejecting duplicate names.
func NewTools(configs map[provider.Kind][]provider.ToolConfig) (*Tools, error) {
	t := &Tools{byKind: make(map[provider.Kind]map[string]provider.ToolConfig, len(configs))}
	for kind, list := range configs {
		byName := make(map[string]provider.ToolConfig, len(list))
		for _, cfg := range list {
			if cfg.Name == "" {
				return nil, fmt.Errorf("%s: tool config has empty name", kind)
			}
			if _, exists := byName[cfg.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate tool %q", kind, cfg.Name)
			}
			byName[cfg.Name] = cfg
		}
		t.byKind[kind] = byName
	}
	return t, nil
}

// DefaultTools offers every built-in tool to Anthropic, OpenAI and Google.
// Google receives schemas reduced to the subset Gemini accepts. Perplexity
// has no function calling and offers none.
func DefaultTools() *Tools {
	defs := tools.Definitions()
	gemini := make([]provider.ToolConfig, 0, len(defs))
	for _, def := range defs {
		def.Parameters = geminiSchema(def.Parameters)
		gemini = append(gemini, def)
	}
	t, err := NewTools(map[provider.Kind][]provider.ToolConfig{
		provider.Anthropic: defs,
		provider.OpenAI:    defs,
		provider.Google:    gemini,
	})
	if err != nil {
		panic(fmt.Sprintf("built-in tool catalog: %v", err))
	}
	return t
}

// Resolve returns the config of a tool offered by kind.
func (t *Tools) Resolve(kind provider.Kind, name string) (provider.ToolConfig, error) {
	cfg, ok := t.byKind[kind][name]
	if !ok {
		return provider.ToolConfig{}, fmt.Errorf("%w: %q for provider %s", ErrUnknownTool, name, kind)
	}
	return cfg, nil
}

// ResolveAll resolves names in order and fails on the first unknown one.
func (t *Tools) ResolveAll(kind provider.Kind, names []string) ([]provider.ToolConfig, error) {
	out := make([]provider.ToolConfig, 0, len(names))
	for _, name := range names {
		cfg, err := t.Resolve(kind, name)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Names returns the sorted tool names offered by kind.
func (t *Tools) Names(kind provider.Kind) []string {
	return slices.Sorted(maps.Keys(t.byKind[kind]))
}

var geminiSchemaKeys = map[string]bool{
	"type":        true,
	"description": true,
	"enum":        true,
	"format":      true,
	"nullable":    true,
	"items":       true,
	"properties":  true,
	"required":    true,
}

// geminiSchema drops JSON Schema keywords Gemini rejects, such as
// additionalProperties and $schema.
func geminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for key, value := range schema {
		if !geminiSchemaKeys[key] {
			continue
		}
		switch key {
		case "items":
			if items, ok := value.(map[string]any); ok {
				out[key] = geminiSchema(items)
			}
		case "properties":
			props, ok := value.(map[string]any)
			if !ok {
				continue
			}
			cleaned := make(map[string]any, len(props))
			for name, raw := range props {
				if prop, ok := raw.(map[string]any); ok {
					cleaned[name] = geminiSchema(prop)
				}
			}
			out[key] = cleaned
		default:
			out[key] = value
		}
	}
	return out
}
