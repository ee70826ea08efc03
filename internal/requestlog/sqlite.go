package requestlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/neoclaw-ai/completions/internal/provider"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps keep lexical and chronological order equal.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const maxRecent = 1000

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create request log directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open request log: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts entry, assigning an ID and start time when missing.
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("request log entry is nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	tools := entry.Tools
	if tools == nil {
		tools = []string{}
	}
	encodedTools, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (
			id, account_id, provider, model, conversation_part_id, system, message_count,
			tools, tool_call_counter, content, input_tokens, output_tokens, total_tokens,
			cost_usd, started_at, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AccountID,
		string(entry.Provider),
		entry.Model,
		entry.ConversationPartID,
		entry.System,
		entry.MessageCount,
		string(encodedTools),
		entry.ToolCallCounter,
		entry.Content,
		entry.Usage.InputTokens,
		entry.Usage.OutputTokens,
		entry.Usage.TotalTokens,
		entry.CostUSD,
		entry.StartedAt.UTC().Format(timeFormat),
		entry.Duration.Milliseconds(),
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("insert request log entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit < 1 {
		limit = 1
	}
	limit = min(limit, maxRecent)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, provider, model, conversation_part_id, system, message_count,
			tools, tool_call_counter, content, input_tokens, output_tokens, total_tokens,
			cost_usd, started_at, duration_ms, error
		FROM requests
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query request log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			tools      string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.AccountID, &kind, &e.Model, &e.ConversationPartID, &e.System, &e.MessageCount,
			&tools, &e.ToolCallCounter, &e.Content, &e.Usage.InputTokens, &e.Usage.OutputTokens, &e.Usage.TotalTokens,
			&e.CostUSD, &startedAt, &durationMS, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("scan request log row: %w", err)
		}
		e.Provider = provider.Kind(kind)
		if err := json.Unmarshal([]byte(tools), &e.Tools); err != nil {
			return nil, fmt.Errorf("decode tools of %s: %w", e.ID, err)
		}
		e.StartedAt, _ = time.Parse(timeFormat, startedAt)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request log rows: %w", err)
	}
	return entries, nil
}

// Spend returns the spend of the local day and month containing now.
func (s *SQLiteStore) Spend(ctx context.Context, now time.Time) (Spend, error) {
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(time.Local)
	year, month, day := local.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	end := now.UTC().Format(timeFormat)

	var totals Spend
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN started_at >= ? THEN cost_usd END), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM requests
		WHERE started_at >= ? AND started_at <= ?`,
		dayStart.UTC().Format(timeFormat),
		monthStart.UTC().Format(timeFormat),
		end,
	).Scan(&totals.TodayUSD, &totals.MonthUSD)
	if err != nil {
		return Spend{}, fmt.Errorf("sum request log spend: %w", err)
	}
	return totals, nil
}
