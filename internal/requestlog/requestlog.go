// Package requestlog records one entry per completion run and reports spend.
package requestlog

import (
	"context"
	"time"

	"github.com/neoclaw-ai/completions/internal/provider"
)

// Entry is one persisted completion run.
type Entry struct {
	ID                 string
	AccountID          string
	Provider           provider.Kind
	Model              string
	ConversationPartID string
	System             string
	MessageCount       int
	Tools              []string
	ToolCallCounter    int
	Content            string
	Usage              provider.TokenUsage
	CostUSD            float64
	StartedAt          time.Time
	Duration           time.Duration
	// Error is the failure message of an aborted run, empty on success.
	Error string
}

// Spend holds aggregated spend totals in USD.
type Spend struct {
	TodayUSD float64
	MonthUSD float64
}

// Store persists request log entries.
type Store interface {
	Save(ctx context.Context, entry *Entry) error
}

// Discard is a Store that drops every entry.
type Discard struct{}

// Save does nothing.
func (Discard) Save(context.Context, *Entry) error {
	return nil
}
