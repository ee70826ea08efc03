package cli

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/neoclaw-ai/completions/internal/completion"
	"github.com/neoclaw-ai/completions/internal/provider"
	"github.com/neoclaw-ai/completions/internal/requestlog"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"complete", "worker", "models", "requests", "part", "config", "version"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s command: %v", name, err)
		}
		if sub == nil || sub.Name() != name {
			t.Fatalf("%s command not registered", name)
		}
	}
}

func TestConfigPrintsMergedConfig(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)

	got, err := executeRoot(t, "config")
	if err != nil {
		t.Fatalf("execute config: %v", err)
	}
	if !strings.Contains(got, "[completion]") {
		t.Fatalf("expected completion section, got %q", got)
	}
	if !strings.Contains(got, "max_tool_calls = 5") {
		t.Fatalf("expected default max_tool_calls in output, got %q", got)
	}
	if !strings.Contains(got, "claude-client-queue") {
		t.Fatalf("expected default queue names in output, got %q", got)
	}
}

func TestCompleteRunsAndPrintsContent(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	fakes := useFakeProviders(t, "hello from llm")

	got, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "gpt-4o", "--system", "be nice", "-m", "user:hi: there")
	if err != nil {
		t.Fatalf("execute complete: %v", err)
	}
	if got != "hello from llm" {
		t.Fatalf("expected output %q, got %q", "hello from llm", got)
	}

	calls := fakes[provider.OpenAI].calls()
	if len(calls) != 1 {
		t.Fatalf("expected one openai call, got %d", len(calls))
	}
	if calls[0].System != "be nice" || calls[0].Messages[0].Content != "hi: there" {
		t.Fatalf("unexpected request %#v", calls[0])
	}

	store, err := requestlog.Open(filepath.Join(homeDir, "data", "requests.db"))
	if err != nil {
		t.Fatalf("open request log: %v", err)
	}
	defer store.Close()
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].AccountID != "acct-1" || entries[0].Content != "hello from llm" {
		t.Fatalf("unexpected request log %#v", entries)
	}
}

func TestCompleteAsyncDrainsMemoryQueue(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	fakes := useFakeProviders(t, "queued answer")

	got, err := executeRoot(t, "complete", "--async", "--account", "acct-1", "--model", "gemini-2.0-flash", "-m", "user:hi")
	if err != nil {
		t.Fatalf("execute complete: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f-]{36}$`).MatchString(got) {
		t.Fatalf("expected job id output, got %q", got)
	}
	if n := len(fakes[provider.Google].calls()); n != 1 {
		t.Fatalf("expected queued job to run once, got %d", n)
	}
	if n := len(fakes[provider.OpenAI].calls()); n != 0 {
		t.Fatalf("expected no openai calls, got %d", n)
	}
}

func TestCompleteRejectsUnknownModel(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	useFakeProviders(t, "unused")

	_, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "no-such-model")
	if !errors.Is(err, completion.ErrUnexpectedAIModel) {
		t.Fatalf("expected UnexpectedAIModel, got %v", err)
	}
}

func TestCompleteRejectsMalformedMessage(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	useFakeProviders(t, "unused")

	if _, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "gpt-4o", "-m", "no role"); err == nil {
		t.Fatalf("expected malformed message to fail")
	}
}

func TestParseMessages(t *testing.T) {
	got, err := parseMessages([]string{"user:a:b", "Assistant: ok"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != provider.RoleUser || got[0].Content != "a:b" {
		t.Fatalf("unexpected first message %#v", got[0])
	}
	if got[1].Role != provider.RoleAssistant || got[1].Content != " ok" {
		t.Fatalf("unexpected second message %#v", got[1])
	}

	if _, err := parseMessages([]string{"tool:x"}); err == nil {
		t.Fatalf("expected tool role to be rejected")
	}
}

func TestModelsListsCatalog(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)

	got, err := executeRoot(t, "models", "--provider", "perplexity")
	if err != nil {
		t.Fatalf("execute models: %v", err)
	}
	if !strings.Contains(got, "sonar-pro") {
		t.Fatalf("expected perplexity models, got %q", got)
	}
	if strings.Contains(got, "gpt-4o") {
		t.Fatalf("expected other providers to be filtered, got %q", got)
	}
}

func TestRequestsShowsSpend(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	useFakeProviders(t, "priced")

	if _, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "gpt-4o"); err != nil {
		t.Fatalf("execute complete: %v", err)
	}
	got, err := executeRoot(t, "requests")
	if err != nil {
		t.Fatalf("execute requests: %v", err)
	}
	// gpt-4o: 1000 input at $2.50/M plus 500 output at $10/M.
	if !strings.Contains(got, "Today: $0.0075") {
		t.Fatalf("expected today's spend, got %q", got)
	}
	if !strings.Contains(got, "acct-1") {
		t.Fatalf("expected request row, got %q", got)
	}
}

func TestCompleteSavesConversationPart(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	useFakeProviders(t, "part answer")

	for i := 0; i < 2; i++ {
		if _, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "gpt-4o", "--part", "part-42"); err != nil {
			t.Fatalf("execute complete: %v", err)
		}
	}

	got, err := executeRoot(t, "part", "part-42")
	if err != nil {
		t.Fatalf("execute part: %v", err)
	}
	if got != "part answer" {
		t.Fatalf("expected latest completion, got %q", got)
	}
	got, err = executeRoot(t, "part", "--all", "part-42")
	if err != nil {
		t.Fatalf("execute part --all: %v", err)
	}
	if got != "part answer\npart answer" {
		t.Fatalf("expected both completions, got %q", got)
	}
}

func TestCompleteRejectsInvalidPartID(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)
	useFakeProviders(t, "unused")

	_, err := executeRoot(t, "complete", "--account", "acct-1", "--model", "gpt-4o", "--part", "../escape")
	if !errors.Is(err, completion.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestVersionPrintsBuildInfo(t *testing.T) {
	got, err := executeRoot(t, "version")
	if err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if got != "completions dev (unknown)" {
		t.Fatalf("unexpected version output %q", got)
	}
}
