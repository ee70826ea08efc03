package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neoclaw-ai/completions/internal/provider"
)

// Job is the serialized snapshot a worker needs to rebuild and run a completion.
type Job struct {
	ID                 string             `json:"id"`
	AccountID          string             `json:"account_id"`
	Model              string             `json:"model"`
	System             string             `json:"system"`
	Messages           []provider.Message `json:"messages"`
	Tools              []string           `json:"tools"`
	ConversationPartID string             `json:"conversation_part_id,omitempty"`
	ToolCallCounter    int                `json:"tool_call_counter,omitempty"`
	EnqueuedAt         time.Time          `json:"enqueued_at"`
}

// NewJob returns a job with a fresh ID and copies of the slices.
func NewJob(accountID, model, system string, messages []provider.Message, tools []string, conversationPartID string) Job {
	return Job{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		Model:              model,
		System:             system,
		Messages:           append([]provider.Message(nil), messages...),
		Tools:              append([]string(nil), tools...),
		ConversationPartID: conversationPartID,
		EnqueuedAt:         time.Now().UTC(),
	}
}

// Encode marshals job to JSON.
func Encode(job Job) ([]byte, error) {
	if job.ID == "" {
		return nil, errors.New("job id is required")
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return raw, nil
}

// Decode unmarshals a job produced by Encode.
func Decode(raw []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" {
		return Job{}, errors.New("decode job: missing id")
	}
	return job, nil
}
