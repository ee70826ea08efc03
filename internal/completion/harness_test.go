package completion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/neoclaw-ai/completions/internal/account"
	"github.com/neoclaw-ai/completions/internal/catalog"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/requestlog"
	"github.com/neoclaw-ai/completions/internal/tools"
)

type fakeRequest struct {
	kind provider.Kind
	spec provider.RequestSpec
}

func (r fakeRequest) Provider() provider.Kind    { return r.kind }
func (r fakeRequest) Spec() provider.RequestSpec { return r.spec }

// scriptProvider answers each completion with respond(n, spec), where n
// counts calls from zero.
type scriptProvider struct {
	kind    provider.Kind
	respond func(n int, spec provider.RequestSpec) (*provider.Response, error)

	mu       sync.Mutex
	requests []provider.RequestSpec
}

func (p *scriptProvider) Kind() provider.Kind { return p.kind }

func (p *scriptProvider) BuildRequest(spec provider.RequestSpec) (provider.Request, error) {
	return fakeRequest{kind: p.kind, spec: spec}, nil
}

func (p *scriptProvider) CreateCompletion(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := len(p.requests)
	p.requests = append(p.requests, req.Spec())
	p.mu.Unlock()
	if p.respond == nil {
		return &provider.Response{Provider: p.kind, Content: "ok"}, nil
	}
	return p.respond(n, req.Spec())
}

func (p *scriptProvider) calls() []provider.RequestSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.RequestSpec(nil), p.requests...)
}

// funcTool runs fn for every call.
type funcTool struct {
	name string
	fn   func(ctx context.Context, call tools.Call) (*tools.Result, error)
}

func (t funcTool) Name() string { return t.name }

func (t funcTool) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	return t.fn(ctx, call)
}

func echoTool(name string) funcTool {
	return funcTool{name: name, fn: func(_ context.Context, call tools.Call) (*tools.Result, error) {
		return &tools.Result{Output: name + ":" + call.Arguments}, nil
	}}
}

type harness struct {
	providers map[provider.Kind]*scriptProvider
	registry  *tools.Registry
	loop      *Loop
	deps      Deps
}

func newHarness(t *testing.T, cfg LoopConfig) *harness {
	t.Helper()
	h := &harness{
		providers: make(map[provider.Kind]*scriptProvider),
		registry:  tools.NewRegistry(),
	}
	byKind := make(map[provider.Kind]provider.Provider)
	for _, kind := range provider.Kinds() {
		p := &scriptProvider{kind: kind}
		h.providers[kind] = p
		byKind[kind] = p
	}
	toolCatalog := catalog.DefaultTools()
	h.loop = NewLoop(NewBuilder(byKind, toolCatalog), NewExecutor(byKind), h.registry, cfg)
	h.deps = Deps{
		Providers: catalog.Default(),
		Tools:     toolCatalog,
		Loop:      h.loop,
	}
	return h
}

func (h *harness) register(t *testing.T, kind provider.Kind, tool tools.Tool) {
	t.Helper()
	if err := h.registry.Register(kind, tool); err != nil {
		t.Fatalf("register %s: %v", tool.Name(), err)
	}
}

func testAccount() *account.Account {
	return &account.Account{ID: "acct-1", Name: "Test"}
}

func toolCallResponse(kind provider.Kind, calls ...provider.ToolCall) *provider.Response {
	return &provider.Response{Provider: kind, ToolCalls: calls, StopReason: "tool_use"}
}

type recordingObserver struct {
	mu       sync.Mutex
	contents []string
	err      error
}

func (o *recordingObserver) Notify(_ context.Context, _ *requestlog.Entry, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contents = append(o.contents, content)
	return o.err
}

type recordingLog struct {
	mu      sync.Mutex
	entries []requestlog.Entry
}

func (l *recordingLog) Save(_ context.Context, entry *requestlog.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

type conversationFunc func(ctx context.Context, partID, content string) error

func (f conversationFunc) SaveCompletion(ctx context.Context, partID, content string) error {
	return f(ctx, partID, content)
}

var errBoom = errors.New("boom")
