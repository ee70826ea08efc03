package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/provider"
)

func createTestHome(t *testing.T) string {
	t.Helper()
	homeDir := filepath.Join(t.TempDir(), ".completions")
	t.Setenv("COMPLETIONS_HOME", homeDir)
	return homeDir
}

func writeValidConfig(t *testing.T, homeDir string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	configBody := `
[providers.openai]
api_key = "test-key"

[tools.search]
provider = "brave"
api_key = "search-key"

[logging]
level = "warn"
format = "text"
`
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

type fakeRequest struct {
	kind provider.Kind
	spec provider.RequestSpec
}

func (r fakeRequest) Provider() provider.Kind    { return r.kind }
func (r fakeRequest) Spec() provider.RequestSpec { return r.spec }

type fakeProvider struct {
	kind    provider.Kind
	content string

	mu    sync.Mutex
	specs []provider.RequestSpec
}

func (p *fakeProvider) Kind() provider.Kind { return p.kind }

func (p *fakeProvider) BuildRequest(spec provider.RequestSpec) (provider.Request, error) {
	return fakeRequest{kind: p.kind, spec: spec}, nil
}

func (p *fakeProvider) CreateCompletion(_ context.Context, req provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs = append(p.specs, req.Spec())
	return &provider.Response{
		Provider: p.kind,
		Content:  p.content,
		Usage:    provider.TokenUsage{InputTokens: 1000, OutputTokens: 500, TotalTokens: 1500},
	}, nil
}

func (p *fakeProvider) calls() []provider.RequestSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.RequestSpec(nil), p.specs...)
}

// useFakeProviders swaps the provider factory for one fake per kind.
func useFakeProviders(t *testing.T, content string) map[provider.Kind]*fakeProvider {
	t.Helper()
	fakes := make(map[provider.Kind]*fakeProvider)
	for _, kind := range provider.Kinds() {
		fakes[kind] = &fakeProvider{kind: kind, content: content}
	}
	orig := providersFactory
	t.Cleanup(func() { providersFactory = orig })
	providersFactory = func(*config.Config) map[provider.Kind]provider.Provider {
		out := make(map[provider.Kind]provider.Provider, len(fakes))
		for kind, p := range fakes {
			out[kind] = p
		}
		return out
	}
	return fakes
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}
