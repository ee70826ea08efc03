package catalog

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/tools"
)

func TestDefaultPriceTablesAreDisjoint(t *testing.T) {
	p, err := NewProviders(DefaultPriceTables())
	if err != nil {
		t.Fatalf("built-in tables overlap: %v", err)
	}
	for _, kind := range provider.Kinds() {
		if len(p.Models(kind)) == 0 {
			t.Fatalf("expected models for %s", kind)
		}
		for _, model := range p.Models(kind) {
			got, err := p.Resolve(model)
			if err != nil {
				t.Fatalf("resolve %s: %v", model, err)
			}
			if got != kind {
				t.Fatalf("model %s resolved to %s, want %s", model, got, kind)
			}
		}
	}
}

func TestNewProvidersRejectsOverlap(t *testing.T) {
	_, err := NewProviders(map[provider.Kind]PriceTable{
		provider.Anthropic: {"shared-model": {}},
		provider.Google:    {"shared-model": {}, "only-google": {}},
	})
	if err == nil {
		t.Fatalf("expected overlap error")
	}
	if !strings.Contains(err.Error(), `model "shared-model" is listed by anthropic, google`) {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestNewProvidersCopiesTables(t *testing.T) {
	table := PriceTable{"m": {InputPerMillion: 1}}
	p, err := NewProviders(map[provider.Kind]PriceTable{provider.OpenAI: table})
	if err != nil {
		t.Fatalf("new providers: %v", err)
	}
	table["late"] = Price{}
	if _, err := p.Resolve("late"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected caller mutation to be ignored, got %v", err)
	}
}

func TestResolveUnknownModel(t *testing.T) {
	_, err := Default().Resolve("llama-3-70b")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if !strings.Contains(err.Error(), "llama-3-70b") {
		t.Fatalf("expected model id in error, got %q", err)
	}
}

func TestResolveKnownModels(t *testing.T) {
	p := Default()
	cases := map[string]provider.Kind{
		"claude-3-5-sonnet-20241022": provider.Anthropic,
		"gpt-4o":                     provider.OpenAI,
		"sonar-pro":                  provider.Perplexity,
		"gemini-1.5-pro":             provider.Google,
	}
	for model, want := range cases {
		got, err := p.Resolve(model)
		if err != nil {
			t.Fatalf("resolve %s: %v", model, err)
		}
		if got != want {
			t.Fatalf("resolve %s = %s, want %s", model, got, want)
		}
	}
}

func TestEstimateUSD(t *testing.T) {
	p, err := NewProviders(map[provider.Kind]PriceTable{
		provider.OpenAI: {"m": {InputPerMillion: 2, OutputPerMillion: 8}},
	})
	if err != nil {
		t.Fatalf("new providers: %v", err)
	}
	usd, ok := p.EstimateUSD(provider.OpenAI, "m", provider.TokenUsage{InputTokens: 500_000, OutputTokens: 250_000})
	if !ok {
		t.Fatalf("expected price")
	}
	if math.Abs(usd-3.0) > 1e-9 {
		t.Fatalf("expected 3.0 USD, got %v", usd)
	}
	if _, ok := p.EstimateUSD(provider.Google, "m", provider.TokenUsage{}); ok {
		t.Fatalf("expected no price under google")
	}
}

func TestDefaultToolsPerProvider(t *testing.T) {
	catalog := DefaultTools()
	want := len(tools.Definitions())
	for _, kind := range []provider.Kind{provider.Anthropic, provider.OpenAI, provider.Google} {
		if got := len(catalog.Names(kind)); got != want {
			t.Fatalf("%s: expected %d tools, got %d", kind, want, got)
		}
	}
	if got := catalog.Names(provider.Perplexity); len(got) != 0 {
		t.Fatalf("expected no perplexity tools, got %v", got)
	}
	_, err := catalog.Resolve(provider.Perplexity, tools.NameSearchWeb)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestResolveAllKeepsOrderAndFailsOnUnknown(t *testing.T) {
	catalog := DefaultTools()
	got, err := catalog.ResolveAll(provider.OpenAI, []string{tools.NameRetrieveWeb, tools.NameSearchWeb})
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(got) != 2 || got[0].Name != tools.NameRetrieveWeb || got[1].Name != tools.NameSearchWeb {
		t.Fatalf("unexpected order %+v", got)
	}

	_, err = catalog.ResolveAll(provider.OpenAI, []string{tools.NameSearchWeb, "send_fax"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "send_fax") {
		t.Fatalf("expected tool name in error, got %q", err)
	}
}

func TestNewToolsRejectsDuplicates(t *testing.T) {
	_, err := NewTools(map[provider.Kind][]provider.ToolConfig{
		provider.OpenAI: {{Name: "a"}, {Name: "a"}},
	})
	if err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewTools(map[provider.Kind][]provider.ToolConfig{provider.OpenAI: {{}}}); err == nil {
		t.Fatalf("expected empty name error")
	}
}

func TestGeminiSchemaDropsUnsupportedKeywords(t *testing.T) {
	in := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"q"},
		"properties": map[string]any{
			"q": map[string]any{"type": "string", "description": "query", "minLength": 1},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "pattern": "^[a-z]+$"},
			},
		},
	}
	out := geminiSchema(in)
	for _, key := range []string{"$schema", "additionalProperties"} {
		if _, ok := out[key]; ok {
			t.Fatalf("expected %s dropped", key)
		}
	}
	props := out["properties"].(map[string]any)
	q := props["q"].(map[string]any)
	if _, ok := q["minLength"]; ok {
		t.Fatalf("expected minLength dropped from nested property")
	}
	if q["description"] != "query" {
		t.Fatalf("expected description kept, got %#v", q)
	}
	items := props["tags"].(map[string]any)["items"].(map[string]any)
	if _, ok := items["pattern"]; ok {
		t.Fatalf("expected pattern dropped from items")
	}
	if _, ok := in["$schema"]; !ok {
		t.Fatalf("expected input schema untouched")
	}
}

func TestGoogleToolSchemasAreSanitized(t *testing.T) {
	cfg, err := DefaultTools().Resolve(provider.Google, tools.NameCallPrompt)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := cfg.Parameters["additionalProperties"]; ok {
		t.Fatalf("expected additionalProperties removed for google")
	}
}
