package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/neoclaw-ai/completions/internal/account"
	"github.com/neoclaw-ai/completions/internal/catalog"
	"github.com/neoclaw-ai/completions/internal/completion"
	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/conversation"
	"github.com/neoclaw-ai/completions/internal/experiment"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/neoclaw-ai/completions/internal/requestlog"
	"github.com/neoclaw-ai/completions/internal/tools"
)

// Swapped in tests to avoid real upstream clients.
var (
	providersFactory = provider.NewAll
	queuesFactory    = queue.NewFromConfig
)

// app holds the wired dependencies shared by subcommands.
type app struct {
	cfg      *config.Config
	deps     completion.Deps
	registry *tools.Registry
	queues   map[provider.Kind]queue.Queue
	requests *requestlog.SQLiteStore
	events   *gochannel.GoChannel
	accounts account.Loader

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	warnStartupConditions(cfg)

	a := &app{
		cfg: cfg,
		// Accounts are owned by the caller's system; any id is accepted here.
		accounts: &account.Static{AllowUnknown: true},
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	providers := providersFactory(cfg)
	for _, p := range providers {
		if closer, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, closer.Close)
		}
	}
	toolCatalog := catalog.DefaultTools()
	deps := &completion.Deps{Providers: catalog.Default(), Tools: toolCatalog}

	registry, datasets, err := tools.NewDefaultRegistry(cfg.Tools, cfg.DatasetsPath(), tools.Collaborators{
		AnalyzeImage: completion.NewImageAnalyzer(deps, cfg.Tools.ImageModel),
	})
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	a.registry = registry
	a.closers = append(a.closers, datasets.Close)

	deps.Loop = completion.NewLoop(
		completion.NewBuilder(providers, toolCatalog),
		completion.NewExecutor(providers),
		registry,
		completion.LoopConfig{
			MaxToolCalls: cfg.Completion.MaxToolCalls,
			Parallel:     cfg.Completion.ParallelTools,
			OutputLimit:  cfg.Completion.ToolOutputLength,
			StrictTools:  cfg.Completion.StrictTools,
		},
	)

	queues, closeQueues, err := queuesFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.queues = queues
	a.closers = append(a.closers, closeQueues)
	if deps.Dispatcher, err = queue.NewDispatcher(queues); err != nil {
		return nil, err
	}

	store, err := requestlog.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.requests = store
	a.closers = append(a.closers, store.Close)
	deps.RequestLog = store

	a.events = experiment.NewGoChannel()
	a.closers = append(a.closers, a.events.Close)
	publisher, err := experiment.NewPublisher(a.events, cfg.Experiments.Topic)
	if err != nil {
		return nil, err
	}
	deps.Observer = publisher
	deps.Conversations = conversation.New(cfg.ConversationsDir())

	a.deps = *deps
	ok = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) jobRunner() *completion.JobRunner {
	return &completion.JobRunner{Deps: a.deps, Accounts: a.accounts}
}
