package completion

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/neoclaw-ai/completions/internal/provider"
)

func TestValidateToolTurns(t *testing.T) {
	twoCalls := provider.Message{
		Role: provider.RoleAssistant,
		ToolCalls: []provider.ToolCall{
			{ID: "t1", Name: "a"},
			{ID: "t2", Name: "b"},
		},
	}

	tests := []struct {
		name    string
		in      []provider.Message
		wantErr bool
	}{
		{
			name: "plain conversation",
			in: []provider.Message{
				{Role: provider.RoleUser, Content: "hi"},
				{Role: provider.RoleAssistant, Content: "hello"},
			},
		},
		{
			name: "answered calls",
			in: []provider.Message{
				{Role: provider.RoleUser, Content: "hi"},
				twoCalls,
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a"},
				{Role: provider.RoleTool, ToolCallID: "t2", Content: "b"},
				{Role: provider.RoleAssistant, Content: "done"},
			},
		},
		{
			name: "results out of call order",
			in: []provider.Message{
				twoCalls,
				{Role: provider.RoleTool, ToolCallID: "t2", Content: "b"},
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a"},
			},
		},
		{
			name: "orphan result",
			in: []provider.Message{
				{Role: provider.RoleUser, Content: "hi"},
				{Role: provider.RoleTool, ToolCallID: "orphan", Content: "orphan"},
			},
			wantErr: true,
		},
		{
			name: "result after the call block",
			in: []provider.Message{
				twoCalls,
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a"},
				{Role: provider.RoleTool, ToolCallID: "t2", Content: "b"},
				{Role: provider.RoleTool, ToolCallID: "zz", Content: "late"},
			},
			wantErr: true,
		},
		{
			name: "call without result",
			in: []provider.Message{
				twoCalls,
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a"},
				{Role: provider.RoleUser, Content: "next"},
			},
			wantErr: true,
		},
		{
			name: "duplicate result",
			in: []provider.Message{
				twoCalls,
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a"},
				{Role: provider.RoleTool, ToolCallID: "t1", Content: "a again"},
				{Role: provider.RoleTool, ToolCallID: "t2", Content: "b"},
			},
			wantErr: true,
		},
		{
			name: "call without id",
			in: []provider.Message{
				{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{Name: "a"}}},
				{Role: provider.RoleTool, Content: "a"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateToolTurns(tt.in)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoopRejectsMalformedHistoryWithoutSending(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 1})
	history := []provider.Message{
		{Role: provider.RoleUser, Content: "hi"},
		{
			Role:      provider.RoleAssistant,
			ToolCalls: []provider.ToolCall{{ID: "a", Name: "search_web"}, {ID: "b", Name: "search_web"}},
		},
		{Role: provider.RoleTool, ToolCallID: "b", Content: "b"},
		{Role: provider.RoleTool, ToolCallID: "a", Content: "a"},
		{Role: provider.RoleTool, ToolCallID: "zz", Content: "orphan"},
		{Role: provider.RoleUser, Content: "again"},
	}

	_, err := h.loop.Run(context.Background(), openAITurn(), history, 0)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if n := len(h.providers[provider.OpenAI].calls()); n != 0 {
		t.Fatalf("expected no request to be sent, got %d", n)
	}
}

func TestLoopSendsHistoryUnchanged(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 1})
	history := []provider.Message{
		{Role: provider.RoleUser, Content: "hi"},
		{
			Role:      provider.RoleAssistant,
			ToolCalls: []provider.ToolCall{{ID: "a", Name: "search_web"}, {ID: "b", Name: "search_web"}},
		},
		{Role: provider.RoleTool, ToolCallID: "b", Content: "b"},
		{Role: provider.RoleTool, ToolCallID: "a", Content: "a"},
		{Role: provider.RoleUser, Content: "again"},
	}

	if _, err := h.loop.Run(context.Background(), openAITurn(), history, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	sent := h.providers[provider.OpenAI].calls()[0].Messages
	if !reflect.DeepEqual(sent, history) {
		t.Fatalf("expected history sent as given, got %#v", sent)
	}
}

func TestNewRejectsMalformedHistory(t *testing.T) {
	h := newHarness(t, LoopConfig{MaxToolCalls: 1})

	_, err := New(h.deps, Params{
		Account: testAccount(),
		Model:   "gpt-4o",
		Messages: []provider.Message{
			{Role: provider.RoleTool, ToolCallID: "stale", Content: "left over"},
		},
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}
