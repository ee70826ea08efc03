package completion

import (
	"fmt"

	"github.com/neoclaw-ai/completions/internal/provider"
)

// validateToolTurns checks that a caller-supplied history pairs tool calls
// and results the way every provider expects: each tool result answers a
// call of the assistant message directly before its run of results, and
// every such call is answered exactly once. Results may come in any order.
// The history is never modified.
func validateToolTurns(messages []provider.Message) error {
	for i := 0; i < len(messages); i++ {
		msg := messages[i]

		if msg.Role == provider.RoleTool {
			return fmt.Errorf("message %d: tool result %q does not follow an assistant tool call", i, msg.ToolCallID)
		}
		if msg.Role != provider.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}

		pending := make(map[string]bool, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			if call.ID == "" {
				return fmt.Errorf("message %d: tool call %q has no id", i, call.Name)
			}
			if pending[call.ID] {
				return fmt.Errorf("message %d: duplicate tool call id %q", i, call.ID)
			}
			pending[call.ID] = true
		}

		j := i + 1
		for ; j < len(messages) && messages[j].Role == provider.RoleTool; j++ {
			id := messages[j].ToolCallID
			if !pending[id] {
				return fmt.Errorf("message %d: tool result %q answers no open call of message %d", j, id, i)
			}
			delete(pending, id)
		}
		for _, call := range msg.ToolCalls {
			if pending[call.ID] {
				return fmt.Errorf("message %d: tool call %q has no result", i, call.ID)
			}
		}
		i = j - 1
	}
	return nil
}
