package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/neoclaw-ai/completions/internal/logging"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/tools"
	"golang.org/x/sync/errgroup"
)

// LoopConfig bounds and tunes the tool loop.
type LoopConfig struct {
	// MaxToolCalls is the number of tool round-trips a completion may make.
	MaxToolCalls int
	// Parallel runs the tool calls of one response concurrently.
	Parallel bool
	// OutputLimit truncates each tool result to this many runes.
	OutputLimit int
	// StrictTools fails the whole run on an unknown tool or a tool error
	// instead of reporting it to the model as a tool result.
	StrictTools bool
}

// Turn is the fixed part of a completion that every iteration rebuilds from.
type Turn struct {
	Provider           provider.Kind
	Model              string
	System             string
	Tools              []string
	AccountID          string
	ConversationPartID string
}

// Outcome is the result of a satisfied tool loop.
type Outcome struct {
	Response *provider.Response
	// Messages is the history including assistant tool calls and tool results.
	Messages        []provider.Message
	ToolCallCounter int
	// Usage sums every request of the loop.
	Usage      provider.TokenUsage
	Iterations int
}

// Loop drives request, response and tool execution until the model stops
// asking for tools or the call limit is hit.
type Loop struct {
	builder  *Builder
	executor *Executor
	registry *tools.Registry
	cfg      LoopConfig
}

// NewLoop wires the loop's collaborators. A negative MaxToolCalls is
// treated as zero and zero OutputLimit uses the tools package default.
func NewLoop(builder *Builder, executor *Executor, registry *tools.Registry, cfg LoopConfig) *Loop {
	if cfg.MaxToolCalls < 0 {
		cfg.MaxToolCalls = 0
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Loop{builder: builder, executor: executor, registry: registry, cfg: cfg}
}

// MaxToolCalls returns the configured limit.
func (l *Loop) MaxToolCalls() int {
	return l.cfg.MaxToolCalls
}

// loopState is the accumulator carried between iterations.
type loopState struct {
	messages []provider.Message
	counter  int
	usage    provider.TokenUsage
}

// Run sends the first request and then satisfies tool calls. counter is the
// caller's starting ToolCallCounter; a response with pending tool calls that
// arrives when counter >= MaxToolCalls fails with ToolCallsLimitReached
// before any tool runs.
func (l *Loop) Run(ctx context.Context, turn Turn, messages []provider.Message, counter int) (*Outcome, error) {
	if err := validateToolTurns(messages); err != nil {
		return nil, newError(CodeValidationFailed, "tool loop", err)
	}
	state := loopState{messages: withStub(messages), counter: counter}

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := l.send(ctx, turn, state.messages, iteration)
		if err != nil {
			return nil, err
		}
		state.usage = state.usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			if resp.Content != "" {
				state.messages = append(state.messages, provider.Message{
					Role:    provider.RoleAssistant,
					Content: resp.Content,
				})
			}
			return &Outcome{
				Response:        resp,
				Messages:        state.messages,
				ToolCallCounter: state.counter,
				Usage:           state.usage,
				Iterations:      iteration,
			}, nil
		}

		if state.counter >= l.cfg.MaxToolCalls {
			logging.Logger().Warn(
				"tool call limit reached",
				"provider", turn.Provider,
				"model", turn.Model,
				"counter", state.counter,
				"max_tool_calls", l.cfg.MaxToolCalls,
				"pending_tool_calls", len(resp.ToolCalls),
			)
			return nil, newError(CodeToolCallsLimitReached, "tool loop",
				fmt.Errorf("%d tool round-trips used, limit is %d", state.counter, l.cfg.MaxToolCalls))
		}

		// Abort before tool side effects if the caller gave up meanwhile.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := l.executeTools(ctx, turn, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		state.messages = append(state.messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		state.messages = append(state.messages, results...)
		state.counter++
	}
}

func (l *Loop) send(ctx context.Context, turn Turn, messages []provider.Message, iteration int) (*provider.Response, error) {
	req, err := l.builder.Build(turn.Provider, turn.System, messages, turn.Model, turn.Tools)
	if err != nil {
		return nil, err
	}

	logging.Logger().Info(
		"llm request",
		"provider", turn.Provider,
		"model", turn.Model,
		"iteration", iteration,
		"message_count", len(messages),
		"tool_count", len(turn.Tools),
		"latest_user_message", summarizeTextForLog(latestUserMessage(messages), 300),
	)
	resp, err := l.executor.Execute(ctx, turn.Provider, req)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info(
		"llm response",
		"provider", turn.Provider,
		"iteration", iteration,
		"tool_call_count", len(resp.ToolCalls),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

// executeTools returns one tool message per call in the order of calls,
// whatever order the executions finish in.
func (l *Loop) executeTools(ctx context.Context, turn Turn, calls []provider.ToolCall) ([]provider.Message, error) {
	results := make([]provider.Message, len(calls))
	if !l.cfg.Parallel || len(calls) == 1 {
		for i, call := range calls {
			msg, err := l.executeTool(ctx, turn, call)
			if err != nil {
				return nil, err
			}
			results[i] = msg
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			msg, err := l.executeTool(gctx, turn, call)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeTool runs one call. Unless StrictTools is set, unknown tools and
// tool failures become tool result messages so the model can react and only
// cancellation aborts the loop.
func (l *Loop) executeTool(ctx context.Context, turn Turn, call provider.ToolCall) (provider.Message, error) {
	result := provider.Message{
		Role:       provider.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
	startedAt := time.Now()

	tool, ok := l.registry.Lookup(turn.Provider, call.Name)
	if !ok || !slices.Contains(turn.Tools, call.Name) {
		logging.Logger().Warn(
			"tool call rejected: unknown tool",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"arguments", summarizeTextForLog(call.Arguments, 200),
			"available_tools", strings.Join(turn.Tools, ", "),
		)
		if l.cfg.StrictTools {
			return provider.Message{}, newError(CodeUnexpectedTool, "execute tool",
				fmt.Errorf("model called unknown tool %q", call.Name))
		}
		result.Content = fmt.Sprintf(
			`tool execution error: unknown tool %q. Available tools: %s. Use an available tool name exactly.`,
			call.Name,
			toolList(turn.Tools),
		)
		return result, nil
	}

	logging.Logger().Info(
		"tool call start",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"args", summarizeToolArgs(call.Arguments),
	)
	out, err := tool.Execute(ctx, tools.Call{
		Provider:           turn.Provider,
		AccountID:          turn.AccountID,
		ConversationPartID: turn.ConversationPartID,
		ToolCallID:         call.ID,
		Arguments:          call.Arguments,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return provider.Message{}, ctxErr
		}
		logging.Logger().Warn(
			"tool call failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"err", err,
		)
		if l.cfg.StrictTools {
			return provider.Message{}, fmt.Errorf("execute tool %s: %w", call.Name, err)
		}
		result.Content = fmt.Sprintf("tool execution error: %v", err)
		return result, nil
	}

	output := ""
	if out != nil {
		output = out.Output
	}
	truncated := tools.Truncate(output, l.cfg.OutputLimit)
	logging.Logger().Info(
		"tool call complete",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"truncated", truncated.Truncated,
	)
	result.Content = truncated.Output
	return result, nil
}

func toolList(names []string) string {
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, ", ")
}

func summarizeToolArgs(raw string) any {
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return summarizeTextForLog(raw, 200)
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = summarizeToolArgValue(value)
	}
	return out
}

func summarizeToolArgValue(value any) any {
	const maxLoggedStringLen = 200

	switch v := value.(type) {
	case string:
		return summarizeTextForLog(v, maxLoggedStringLen)
	default:
		return value
	}
}

func latestUserMessage(history []provider.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == provider.RoleUser && strings.TrimSpace(history[i].Text()) != "" {
			return history[i].Text()
		}
	}
	return ""
}

func summarizeTextForLog(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	return fmt.Sprintf("%s...[truncated %d chars]", text[:maxLen], len(text)-maxLen)
}
