package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neoclaw-ai/completions/internal/account"
	"github.com/neoclaw-ai/completions/internal/catalog"
	"github.com/neoclaw-ai/completions/internal/experiment"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/neoclaw-ai/completions/internal/requestlog"
)

// ConversationStore receives the final content of completions that belong
// to a conversation part.
type ConversationStore interface {
	SaveCompletion(ctx context.Context, conversationPartID, content string) error
}

// Deps are the shared, read-only collaborators of every Action.
type Deps struct {
	Providers  *catalog.Providers
	Tools      *catalog.Tools
	Loop       *Loop
	Dispatcher *queue.Dispatcher
	// RequestLog defaults to requestlog.Discard.
	RequestLog requestlog.Store
	// Conversations is optional.
	Conversations ConversationStore
	// Observer defaults to experiment.Nop.
	Observer experiment.Observer
}

// Params are the inputs of one completion.
type Params struct {
	Account            *account.Account
	Model              string
	System             string
	Messages           []provider.Message
	Tools              []string
	ToolCallCounter    int
	ConversationPartID string
}

// Result is the outcome of a successful Run.
type Result struct {
	RequestID string
	Provider  provider.Kind
	*Outcome
	CostUSD float64
}

// Action is one validated completion, ready to run now or on a queue.
type Action struct {
	deps   Deps
	params Params
	kind   provider.Kind
}

// New resolves the model's provider and the requested tools. It fails with
// UnexpectedAIModel or UnexpectedTool before any request is built, and with
// ValidationFailed when the history pairs tool calls and results badly.
func New(deps Deps, params Params) (*Action, error) {
	if deps.Providers == nil || deps.Tools == nil {
		return nil, errors.New("provider and tool catalogs are required")
	}
	if params.Account == nil {
		return nil, errors.New("account is required")
	}
	if params.ToolCallCounter < 0 {
		return nil, fmt.Errorf("tool call counter must be >= 0, got %d", params.ToolCallCounter)
	}
	if err := validateToolTurns(params.Messages); err != nil {
		return nil, newError(CodeValidationFailed, "new completion", err)
	}

	kind, err := resolveProvider(deps.Providers, params.Model)
	if err != nil {
		return nil, err
	}
	if _, err := deps.Tools.ResolveAll(kind, params.Tools); err != nil {
		if errors.Is(err, catalog.ErrUnknownTool) {
			return nil, newError(CodeUnexpectedTool, "new completion", err)
		}
		return nil, err
	}

	if deps.RequestLog == nil {
		deps.RequestLog = requestlog.Discard{}
	}
	if deps.Observer == nil {
		deps.Observer = experiment.Nop{}
	}
	params.Messages = append([]provider.Message(nil), params.Messages...)
	params.Tools = append([]string(nil), params.Tools...)
	return &Action{deps: deps, params: params, kind: kind}, nil
}

// Provider returns the provider that owns the model.
func (a *Action) Provider() provider.Kind {
	return a.kind
}

// Messages returns the history the action will send. An empty history is
// replaced by StubMessage.
func (a *Action) Messages() []provider.Message {
	return withStub(a.params.Messages)
}

// Run executes the completion and its tool loop synchronously. Any failure
// aborts the whole run and no partial result is returned.
func (a *Action) Run(ctx context.Context) (*Result, error) {
	if a.deps.Loop == nil {
		return nil, errors.New("tool loop is required")
	}
	startedAt := time.Now()
	entry := &requestlog.Entry{
		ID:                 uuid.NewString(),
		AccountID:          a.params.Account.ID,
		Provider:           a.kind,
		Model:              a.params.Model,
		ConversationPartID: a.params.ConversationPartID,
		System:             a.params.System,
		MessageCount:       len(a.Messages()),
		Tools:              a.params.Tools,
		ToolCallCounter:    a.params.ToolCallCounter,
		StartedAt:          startedAt,
	}

	outcome, err := a.deps.Loop.Run(ctx, a.turn(), a.params.Messages, a.params.ToolCallCounter)
	entry.Duration = time.Since(startedAt)
	if err != nil {
		entry.Error = err.Error()
		a.saveEntry(ctx, entry)
		return nil, err
	}

	entry.Content = outcome.Response.Content
	entry.ToolCallCounter = outcome.ToolCallCounter
	entry.Usage = outcome.Usage
	if usd, ok := a.deps.Providers.EstimateUSD(a.kind, a.params.Model, outcome.Usage); ok {
		entry.CostUSD = usd
	}
	a.saveEntry(ctx, entry)

	if a.params.ConversationPartID != "" && a.deps.Conversations != nil {
		if err := a.deps.Conversations.SaveCompletion(ctx, a.params.ConversationPartID, outcome.Response.Content); err != nil {
			if CodeOf(err) == "" {
				err = newError(CodeValidationFailed, "save conversation part", err)
			}
			return nil, err
		}
	}

	if err := a.deps.Observer.Notify(ctx, entry, outcome.Response.Content); err != nil {
		logging.Logger().Warn("experiment observer failed", "request_id", entry.ID, "provider", a.kind, "err", err)
	}

	return &Result{
		RequestID: entry.ID,
		Provider:  a.kind,
		Outcome:   outcome,
		CostUSD:   entry.CostUSD,
	}, nil
}

// EnqueueRun pushes a job snapshot onto the provider's queue and returns it
// without executing anything. The provider is resolved again from the model.
func (a *Action) EnqueueRun(ctx context.Context) (queue.Job, error) {
	if a.deps.Dispatcher == nil {
		return queue.Job{}, errors.New("queue dispatcher is required")
	}
	kind, err := resolveProvider(a.deps.Providers, a.params.Model)
	if err != nil {
		return queue.Job{}, err
	}
	job := queue.NewJob(
		a.params.Account.ID,
		a.params.Model,
		a.params.System,
		a.params.Messages,
		a.params.Tools,
		a.params.ConversationPartID,
	)
	job.ToolCallCounter = a.params.ToolCallCounter
	if err := a.deps.Dispatcher.Enqueue(ctx, kind, job); err != nil {
		return queue.Job{}, fmt.Errorf("enqueue completion: %w", err)
	}
	return job, nil
}

func (a *Action) turn() Turn {
	return Turn{
		Provider:           a.kind,
		Model:              a.params.Model,
		System:             a.params.System,
		Tools:              a.params.Tools,
		AccountID:          a.params.Account.ID,
		ConversationPartID: a.params.ConversationPartID,
	}
}

func (a *Action) saveEntry(ctx context.Context, entry *requestlog.Entry) {
	// The request log must not lose an entry because the caller was cancelled.
	if err := a.deps.RequestLog.Save(context.WithoutCancel(ctx), entry); err != nil {
		logging.Logger().Warn("save request log failed", "request_id", entry.ID, "err", err)
	}
}

func resolveProvider(providers *catalog.Providers, model string) (provider.Kind, error) {
	kind, err := providers.Resolve(model)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownModel) {
			return "", newError(CodeUnexpectedAIModel, "resolve provider", err)
		}
		return "", err
	}
	return kind, nil
}
