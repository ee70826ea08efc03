package cli

import (
	"fmt"
	"strings"

	"github.com/neoclaw-ai/completions/internal/completion"
	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/spf13/cobra"
)

func newCompleteCmd() *cobra.Command {
	var (
		accountID string
		model     string
		system    string
		messages  []string
		toolNames []string
		partID    string
		counter   int
		async     bool
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Run one completion, or enqueue it with --async",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := parseMessages(messages)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.accounts.Load(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			action, err := completion.New(a.deps, completion.Params{
				Account:            acct,
				Model:              model,
				System:             system,
				Messages:           history,
				Tools:              toolNames,
				ToolCallCounter:    counter,
				ConversationPartID: partID,
			})
			if err != nil {
				return err
			}

			if async {
				job, err := action.EnqueueRun(cmd.Context())
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), job.ID); err != nil {
					return err
				}
				return drainInProcess(cmd, a, action.Provider())
			}

			result, err := action.Run(cmd.Context())
			if err != nil {
				return err
			}
			logging.Logger().Info(
				"completion finished",
				"request_id", result.RequestID,
				"provider", result.Provider,
				"tool_call_counter", result.ToolCallCounter,
				"cost_usd", result.CostUSD,
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Response.Content)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account the completion is billed to")
	cmd.Flags().StringVar(&model, "model", "", "Model id; selects the provider")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "History message as role:text (repeatable; role is user or assistant)")
	cmd.Flags().StringArrayVar(&toolNames, "tool", nil, "Tool the model may call (repeatable)")
	cmd.Flags().StringVar(&partID, "part", "", "Conversation part id the result belongs to")
	cmd.Flags().IntVar(&counter, "counter", 0, "Tool calls already spent by this conversation")
	cmd.Flags().BoolVar(&async, "async", false, "Enqueue on the provider's queue instead of running now")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

// drainInProcess runs queued jobs before exit when the queue lives in this
// process; a redis queue is left to `completions worker`.
func drainInProcess(cmd *cobra.Command, a *app, kind provider.Kind) error {
	q, ok := a.queues[kind].(*queue.MemoryQueue)
	if !ok {
		return nil
	}
	worker := queue.NewWorker(q, a.jobRunner(), a.cfg.Queue.Workers)
	if err := worker.Start(cmd.Context()); err != nil {
		return err
	}
	q.Close()
	worker.Wait()
	return nil
}

// parseMessages reads role:text pairs. Text may itself contain colons.
func parseMessages(raw []string) ([]provider.Message, error) {
	out := make([]provider.Message, 0, len(raw))
	for _, item := range raw {
		role, text, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("message %q: expected role:text", item)
		}
		switch provider.Role(strings.ToLower(strings.TrimSpace(role))) {
		case provider.RoleUser:
			out = append(out, provider.Message{Role: provider.RoleUser, Content: text})
		case provider.RoleAssistant:
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: text})
		default:
			return nil, fmt.Errorf("message %q: unsupported role %q", item, role)
		}
	}
	return out, nil
}
