package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/experiment"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued completions until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Queue.Backend == config.QueueBackendMemory {
				logging.Logger().Warn("queue backend is memory; this worker only sees jobs enqueued by its own process")
			}
			return runWorkers(runCtx, a)
		},
	}
}

// runWorkers starts one worker per provider queue and blocks until ctx is
// done and every in-flight job has returned.
func runWorkers(ctx context.Context, a *app) error {
	go func() {
		err := experiment.Subscribe(ctx, a.events, a.cfg.Experiments.Topic, logExperimentEvent)
		if err != nil {
			logging.Logger().Warn("experiment subscriber stopped", "err", err)
		}
	}()

	runner := a.jobRunner()
	workers := make([]*queue.Worker, 0, len(provider.Kinds()))
	for _, kind := range provider.Kinds() {
		q := a.queues[kind]
		w := queue.NewWorker(q, runner, a.cfg.Queue.Workers)
		if err := w.Start(ctx); err != nil {
			return err
		}
		workers = append(workers, w)
		logging.Logger().Info("worker started", "provider", kind, "queue", q.Name(), "concurrency", a.cfg.Queue.Workers)
	}

	<-ctx.Done()
	for _, w := range workers {
		w.Wait()
	}
	logging.Logger().Info("workers stopped")
	return nil
}

func logExperimentEvent(_ context.Context, event experiment.Event) error {
	logging.Logger().Info(
		"experiment event",
		"request_id", event.RequestID,
		"account_id", event.AccountID,
		"provider", event.Provider,
		"model", event.Model,
		"tool_call_counter", event.ToolCallCounter,
		"cost_usd", event.CostUSD,
	)
	return nil
}
