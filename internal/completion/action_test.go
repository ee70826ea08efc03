package completion

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/neoclaw-ai/completions/internal/account"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/neoclaw-ai/completions/internal/tools"
)

func TestActionRunWithEmptyHistoryNotifiesObserver(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return &provider.Response{Provider: provider.OpenAI, Content: "hello there"}, nil
	}
	observer := &recordingObserver{}
	h.deps.Observer = observer

	action, err := New(h.deps, Params{Account: testAccount(), Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if action.Provider() != provider.OpenAI {
		t.Fatalf("expected openai, got %s", action.Provider())
	}

	result, err := action.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Response.Content != "hello there" {
		t.Fatalf("unexpected content %q", result.Response.Content)
	}
	calls := h.providers[provider.OpenAI].calls()
	if len(calls) != 1 {
		t.Fatalf("expected executor to be invoked once, got %d", len(calls))
	}
	if want := []provider.Message{StubMessage}; !reflect.DeepEqual(calls[0].Messages, want) {
		t.Fatalf("expected stub history, got %#v", calls[0].Messages)
	}
	if !reflect.DeepEqual(observer.contents, []string{"hello there"}) {
		t.Fatalf("expected observer to see content, got %v", observer.contents)
	}
	for _, kind := range []provider.Kind{provider.Anthropic, provider.Perplexity, provider.Google} {
		if n := len(h.providers[kind].calls()); n != 0 {
			t.Fatalf("expected no calls to %s, got %d", kind, n)
		}
	}
}

func TestNewRejectsUnknownModelBeforeAnyRequest(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})

	_, err := New(h.deps, Params{Account: testAccount(), Model: "no-such-model"})
	if !errors.Is(err, ErrUnexpectedAIModel) {
		t.Fatalf("expected UnexpectedAIModel, got %v", err)
	}
	for kind, p := range h.providers {
		if n := len(p.calls()); n != 0 {
			t.Fatalf("expected no calls to %s, got %d", kind, n)
		}
	}
}

func TestNewRejectsToolUnknownToTheProvider(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})

	_, err := New(h.deps, Params{Account: testAccount(), Model: "sonar", Tools: []string{tools.NameSearchWeb}})
	if CodeOf(err) != CodeUnexpectedTool {
		t.Fatalf("expected UnexpectedTool, got %v", err)
	}
}

func TestNewRequiresAccount(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})

	if _, err := New(h.deps, Params{Model: "gpt-4o"}); err == nil {
		t.Fatalf("expected missing account to fail")
	}
}

func TestActionRunAtLimitFailsBeforeToolsRun(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	executed := false
	h.register(t, provider.OpenAI, funcTool{name: tools.NameSearchWeb, fn: func(context.Context, tools.Call) (*tools.Result, error) {
		executed = true
		return &tools.Result{Output: "x"}, nil
	}})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return toolCallResponse(provider.OpenAI, provider.ToolCall{ID: "s", Name: tools.NameSearchWeb, Arguments: "{}"}), nil
	}
	log := &recordingLog{}
	h.deps.RequestLog = log

	action, err := New(h.deps, Params{
		Account:         testAccount(),
		Model:           "gpt-4o",
		Tools:           []string{tools.NameSearchWeb},
		ToolCallCounter: 5,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := action.Run(context.Background())
	if !errors.Is(err, ErrToolCallsLimitReached) {
		t.Fatalf("expected ToolCallsLimitReached, got result=%v err=%v", result, err)
	}
	if result != nil {
		t.Fatalf("expected no partial result, got %#v", result)
	}
	if executed {
		t.Fatalf("expected no tool to run")
	}
	if len(log.entries) != 1 || !strings.Contains(log.entries[0].Error, "ToolCallsLimitReached") {
		t.Fatalf("expected failed request to be logged, got %#v", log.entries)
	}
}

func TestEnqueueRunRoutesJobToProviderQueue(t *testing.T) {
	tests := []struct {
		model string
		kind  provider.Kind
		tools []string
	}{
		{model: "claude-sonnet-4-5", kind: provider.Anthropic, tools: []string{tools.NameSearchWeb}},
		{model: "gpt-4o", kind: provider.OpenAI, tools: []string{tools.NameBrowseWeb}},
		{model: "sonar-pro", kind: provider.Perplexity},
		{model: "gemini-2.0-flash", kind: provider.Google, tools: []string{tools.NameRetrieveWeb}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t, LoopConfig{MaxToolCalls: 5})
			queues := map[provider.Kind]queue.Queue{}
			memory := map[provider.Kind]*queue.MemoryQueue{}
			for _, kind := range provider.Kinds() {
				q := queue.NewMemoryQueue("completions:"+string(kind), 4)
				queues[kind] = q
				memory[kind] = q
			}
			dispatcher, err := queue.NewDispatcher(queues)
			if err != nil {
				t.Fatalf("dispatcher: %v", err)
			}
			h.deps.Dispatcher = dispatcher

			messages := []provider.Message{{Role: provider.RoleUser, Content: "summarise this"}}
			action, err := New(h.deps, Params{
				Account:            testAccount(),
				Model:              tt.model,
				System:             "be brief",
				Messages:           messages,
				Tools:              tt.tools,
				ToolCallCounter:    2,
				ConversationPartID: "part-7",
			})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			job, err := action.EnqueueRun(context.Background())
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			for kind, q := range memory {
				want := 0
				if kind == tt.kind {
					want = 1
				}
				if q.Len() != want {
					t.Fatalf("expected %d jobs on %s queue, got %d", want, kind, q.Len())
				}
			}
			queued, err := memory[tt.kind].Pop(context.Background())
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if queued.ID != job.ID || queued.AccountID != "acct-1" || queued.Model != tt.model {
				t.Fatalf("unexpected job %#v", queued)
			}
			if queued.System != "be brief" || queued.ConversationPartID != "part-7" || queued.ToolCallCounter != 2 {
				t.Fatalf("unexpected job %#v", queued)
			}
			if !reflect.DeepEqual(queued.Messages, messages) {
				t.Fatalf("expected original messages, got %#v", queued.Messages)
			}
			if len(queued.Tools) != len(tt.tools) || (len(tt.tools) > 0 && !reflect.DeepEqual(queued.Tools, tt.tools)) {
				t.Fatalf("expected original tools, got %#v", queued.Tools)
			}
			for _, kind := range provider.Kinds() {
				if n := len(h.providers[kind].calls()); n != 0 {
					t.Fatalf("expected nothing to run on enqueue, %s got %d calls", kind, n)
				}
			}
		})
	}
}

func TestQueuedJobKeepsToolCallCounter(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	executed := false
	h.register(t, provider.OpenAI, funcTool{name: tools.NameSearchWeb, fn: func(context.Context, tools.Call) (*tools.Result, error) {
		executed = true
		return &tools.Result{Output: "x"}, nil
	}})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return toolCallResponse(provider.OpenAI, provider.ToolCall{ID: "s", Name: tools.NameSearchWeb, Arguments: "{}"}), nil
	}
	q := queue.NewMemoryQueue("openai", 4)
	queues := map[provider.Kind]queue.Queue{provider.OpenAI: q}
	for _, kind := range provider.Kinds() {
		if kind != provider.OpenAI {
			queues[kind] = queue.NewMemoryQueue(string(kind), 4)
		}
	}
	dispatcher, err := queue.NewDispatcher(queues)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	h.deps.Dispatcher = dispatcher

	action, err := New(h.deps, Params{
		Account:         testAccount(),
		Model:           "gpt-4o",
		Tools:           []string{tools.NameSearchWeb},
		ToolCallCounter: 5,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := action.EnqueueRun(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("pop: %v", err)
	}

	runner := &JobRunner{Deps: h.deps, Accounts: account.NewStatic(*testAccount())}
	err = runner.HandleJob(context.Background(), job)
	if !errors.Is(err, ErrToolCallsLimitReached) {
		t.Fatalf("expected ToolCallsLimitReached, got %v", err)
	}
	if executed {
		t.Fatalf("expected no tool to run")
	}
}

func TestRetryAfterTransportErrorKeepsProviderAndRequestShape(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.providers[provider.Anthropic].respond = func(n int, _ provider.RequestSpec) (*provider.Response, error) {
		if n == 0 {
			return nil, errBoom
		}
		return &provider.Response{Provider: provider.Anthropic, Content: "ok"}, nil
	}
	params := Params{
		Account:  testAccount(),
		Model:    "claude-sonnet-4-5",
		System:   "sys",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		Tools:    []string{tools.NameSearchWeb, tools.NameParseFile},
	}

	first, err := New(h.deps, params)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := first.Run(context.Background()); !errors.Is(err, ErrTransport) || !errors.Is(err, errBoom) {
		t.Fatalf("expected TransportError wrapping upstream error, got %v", err)
	}

	retry, err := New(h.deps, params)
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}
	if retry.Provider() != first.Provider() {
		t.Fatalf("expected same provider, got %s and %s", first.Provider(), retry.Provider())
	}
	if _, err := retry.Run(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}

	calls := h.providers[provider.Anthropic].calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(calls))
	}
	if !reflect.DeepEqual(calls[0], calls[1]) {
		t.Fatalf("expected equivalent requests, got %#v and %#v", calls[0], calls[1])
	}
}

func TestActionRunLogsRequestWithCost(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return &provider.Response{
			Provider: provider.OpenAI,
			Content:  "priced",
			Usage:    provider.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000, TotalTokens: 1_100_000},
		}, nil
	}
	log := &recordingLog{}
	h.deps.RequestLog = log

	action, err := New(h.deps, Params{Account: testAccount(), Model: "gpt-4o", ConversationPartID: "part-1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	result, err := action.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if math.Abs(result.CostUSD-3.5) > 1e-9 {
		t.Fatalf("expected cost 3.5, got %v", result.CostUSD)
	}
	if len(log.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(log.entries))
	}
	entry := log.entries[0]
	if entry.ID != result.RequestID || entry.Provider != provider.OpenAI || entry.Content != "priced" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry.AccountID != "acct-1" || entry.ConversationPartID != "part-1" || entry.MessageCount != 1 {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry.Error != "" {
		t.Fatalf("expected no error, got %q", entry.Error)
	}
}

func TestActionRunSavesConversationPart(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return &provider.Response{Provider: provider.OpenAI, Content: "saved"}, nil
	}
	var gotPart, gotContent string
	h.deps.Conversations = conversationFunc(func(_ context.Context, partID, content string) error {
		gotPart, gotContent = partID, content
		return nil
	})

	action, err := New(h.deps, Params{Account: testAccount(), Model: "gpt-4o", ConversationPartID: "part-3"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := action.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotPart != "part-3" || gotContent != "saved" {
		t.Fatalf("unexpected conversation save %q %q", gotPart, gotContent)
	}
}

func TestActionRunMarksConversationRejectionAsValidationFailed(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	observer := &recordingObserver{}
	h.deps.Observer = observer
	h.deps.Conversations = conversationFunc(func(context.Context, string, string) error {
		return errBoom
	})

	action, err := New(h.deps, Params{Account: testAccount(), Model: "gpt-4o", ConversationPartID: "part-3"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = action.Run(context.Background())
	if !errors.Is(err, ErrValidationFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("expected ValidationFailed wrapping rejection, got %v", err)
	}
	if len(observer.contents) != 0 {
		t.Fatalf("expected observer not to be notified, got %v", observer.contents)
	}
}

func TestActionRunIgnoresObserverFailure(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.deps.Observer = &recordingObserver{err: errBoom}

	action, err := New(h.deps, Params{Account: testAccount(), Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := action.Run(context.Background()); err != nil {
		t.Fatalf("expected observer failure to be ignored, got %v", err)
	}
}

func TestJobRunnerRunsQueuedJob(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	var saved string
	h.deps.Conversations = conversationFunc(func(_ context.Context, partID, _ string) error {
		saved = partID
		return nil
	})
	runner := &JobRunner{Deps: h.deps, Accounts: account.NewStatic(*testAccount())}

	job := queue.NewJob("acct-1", "gpt-4o", "sys", []provider.Message{{Role: provider.RoleUser, Content: "hi"}}, nil, "part-9")
	if err := runner.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}
	calls := h.providers[provider.OpenAI].calls()
	if len(calls) != 1 || calls[0].System != "sys" {
		t.Fatalf("unexpected upstream calls %#v", calls)
	}
	if saved != "part-9" {
		t.Fatalf("expected conversation part to be saved, got %q", saved)
	}
}

func TestJobRunnerRejectsUnknownAccount(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	runner := &JobRunner{Deps: h.deps, Accounts: account.NewStatic()}

	job := queue.NewJob("ghost", "gpt-4o", "", nil, nil, "")
	err := runner.HandleJob(context.Background(), job)
	if !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := len(h.providers[provider.OpenAI].calls()); n != 0 {
		t.Fatalf("expected no upstream calls, got %d", n)
	}
}

func TestImageAnalyzerRunsToolFreeCompletion(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	h.providers[provider.OpenAI].respond = func(int, provider.RequestSpec) (*provider.Response, error) {
		return &provider.Response{Provider: provider.OpenAI, Content: "a cat on a mat"}, nil
	}
	tool := &tools.ImageAnalysisTool{Analyze: NewImageAnalyzer(&h.deps, "gpt-4o-mini")}

	out, err := tool.Execute(context.Background(), tools.Call{
		Provider:  provider.Anthropic,
		AccountID: "acct-1",
		Arguments: `{"image_url":"https://example.com/cat.png","question":"What animal?"}`,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Output != "a cat on a mat" {
		t.Fatalf("unexpected output %q", out.Output)
	}
	calls := h.providers[provider.OpenAI].calls()
	if len(calls) != 1 {
		t.Fatalf("expected one nested completion, got %d", len(calls))
	}
	if calls[0].Model != "gpt-4o-mini" || len(calls[0].Tools) != 0 {
		t.Fatalf("unexpected nested request %#v", calls[0])
	}
	blocks := calls[0].Messages[0].Blocks
	if len(blocks) != 2 || blocks[0].URL != "https://example.com/cat.png" || blocks[1].Text != "What animal?" {
		t.Fatalf("unexpected image blocks %#v", blocks)
	}
}

func TestImageAnalyzerWithoutModelIsNotConfigured(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 5})
	analyze := NewImageAnalyzer(&h.deps, "")

	_, err := analyze(context.Background(), tools.Call{}, tools.ImageAnalysisArgs{ImageURL: "https://example.com/a.png"})
	if !errors.Is(err, tools.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
