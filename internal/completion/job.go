package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/neoclaw-ai/completions/internal/account"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/queue"
	"github.com/neoclaw-ai/completions/internal/tools"
)

// JobRunner rebuilds an Action from a queued job and runs it.
type JobRunner struct {
	Deps     Deps
	Accounts account.Loader
}

// HandleJob implements queue.Handler.
func (r *JobRunner) HandleJob(ctx context.Context, job queue.Job) error {
	if r.Accounts == nil {
		return errors.New("account loader is required")
	}
	acct, err := r.Accounts.Load(ctx, job.AccountID)
	if err != nil {
		return fmt.Errorf("load account for job %s: %w", job.ID, err)
	}
	action, err := New(r.Deps, Params{
		Account:            acct,
		Model:              job.Model,
		System:             job.System,
		Messages:           job.Messages,
		Tools:              job.Tools,
		ToolCallCounter:    job.ToolCallCounter,
		ConversationPartID: job.ConversationPartID,
	})
	if err != nil {
		return fmt.Errorf("rebuild job %s: %w", job.ID, err)
	}
	if _, err := action.Run(ctx); err != nil {
		return fmt.Errorf("run job %s: %w", job.ID, err)
	}
	return nil
}

// NewImageAnalyzer answers image_analysis calls with a tool-free completion
// on model. deps is read when the tool runs, so it may be filled in after
// the tool registry that holds the analyzer is built.
func NewImageAnalyzer(deps *Deps, model string) tools.ImageAnalyzer {
	return func(ctx context.Context, call tools.Call, args tools.ImageAnalysisArgs) (string, error) {
		if deps == nil || model == "" {
			return "", tools.ErrNotConfigured
		}
		question := args.Question
		if question == "" {
			question = "Describe this image in detail."
		}
		action, err := New(*deps, Params{
			Account: &account.Account{ID: call.AccountID},
			Model:   model,
			Messages: []provider.Message{{
				Role: provider.RoleUser,
				Blocks: []provider.Block{
					{Type: provider.BlockImage, URL: args.ImageURL},
					{Type: provider.BlockText, Text: question},
				},
			}},
		})
		if err != nil {
			return "", err
		}
		result, err := action.Run(ctx)
		if err != nil {
			return "", err
		}
		return result.Response.Content, nil
	}
}
