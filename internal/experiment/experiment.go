// Package experiment notifies downstream observers of finished completions.
package experiment

import (
	"context"
	"errors"
	"time"

	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/requestlog"
)

// Observer receives the request log and final content of every successful run.
// Callers treat Notify as fire-and-forget and only log its errors.
type Observer interface {
	Notify(ctx context.Context, entry *requestlog.Entry, content string) error
}

// Event is the JSON payload published for one finished completion.
type Event struct {
	RequestID          string              `json:"request_id"`
	AccountID          string              `json:"account_id"`
	Provider           provider.Kind       `json:"provider"`
	Model              string              `json:"model"`
	ConversationPartID string              `json:"conversation_part_id,omitempty"`
	ToolCallCounter    int                 `json:"tool_call_counter"`
	Usage              provider.TokenUsage `json:"usage"`
	CostUSD            float64             `json:"cost_usd"`
	Content            string              `json:"content"`
	CompletedAt        time.Time           `json:"completed_at"`
}

// NewEvent builds the event for entry and content.
func NewEvent(entry *requestlog.Entry, content string) Event {
	event := Event{Content: content, CompletedAt: time.Now().UTC()}
	if entry == nil {
		return event
	}
	event.RequestID = entry.ID
	event.AccountID = entry.AccountID
	event.Provider = entry.Provider
	event.Model = entry.Model
	event.ConversationPartID = entry.ConversationPartID
	event.ToolCallCounter = entry.ToolCallCounter
	event.Usage = entry.Usage
	event.CostUSD = entry.CostUSD
	if !entry.StartedAt.IsZero() {
		event.CompletedAt = entry.StartedAt.Add(entry.Duration).UTC()
	}
	return event
}

// Nop ignores every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, *requestlog.Entry, string) error {
	return nil
}

// Multi fans a notification out to several observers. Every observer is
// called even when an earlier one fails.
type Multi []Observer

// Notify calls each observer in order and joins their errors.
func (m Multi) Notify(ctx context.Context, entry *requestlog.Entry, content string) error {
	var errs []error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Notify(ctx, entry, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Observer.
type Func func(ctx context.Context, entry *requestlog.Entry, content string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, entry *requestlog.Entry, content string) error {
	return f(ctx, entry, content)
}
