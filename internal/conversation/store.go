// Package conversation persists the final content of completions per
// conversation part as JSONL records, one file per part.
package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/neoclaw-ai/completions/internal/completion"
)

// MaxContentBytes bounds one saved completion.
const MaxContentBytes = 1 << 20

var partIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Part is one saved completion of a conversation part.
type Part struct {
	PartID  string    `json:"part_id"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"saved_at"`
}

// Store appends completions under dir. It implements
// completion.ConversationStore.
type Store struct {
	dir string

	mu sync.Mutex
}

// New creates a store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// SaveCompletion appends content to the part's file. Malformed part ids and
// oversized content are rejected as ValidationFailed.
func (s *Store) SaveCompletion(ctx context.Context, partID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePartID(partID); err != nil {
		return completion.ValidationFailed(err)
	}
	if len(content) > MaxContentBytes {
		return completion.ValidationFailed(fmt.Errorf("content of part %s is %d bytes, limit is %d", partID, len(content), MaxContentBytes))
	}

	encoded, err := json.Marshal(Part{PartID: partID, Content: content, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal conversation part: %w", err)
	}
	encoded = append(encoded, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendFile(s.path(partID), encoded); err != nil {
		return fmt.Errorf("append conversation part: %w", err)
	}
	return nil
}

// Load returns every saved completion of a part in save order. Malformed
// lines are skipped and a part with no file has no completions.
func (s *Store) Load(ctx context.Context, partID string) ([]Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePartID(partID); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(partID))
	if errors.Is(err, os.ErrNotExist) {
		return []Part{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open conversation part: %w", err)
	}
	defer f.Close()

	parts := make([]Part, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), MaxContentBytes*2)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var part Part
		if err := json.Unmarshal(line, &part); err != nil {
			continue
		}
		parts = append(parts, part)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan conversation part: %w", err)
	}
	return parts, nil
}

func (s *Store) path(partID string) string {
	return filepath.Join(s.dir, partID+".jsonl")
}

func validatePartID(partID string) error {
	if !partIDPattern.MatchString(partID) {
		return fmt.Errorf("invalid conversation part id %q", partID)
	}
	return nil
}

// appendFile appends data, creating the file and its directory if missing.
func appendFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open file %q for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append file %q: %w", path, err)
	}
	return nil
}
