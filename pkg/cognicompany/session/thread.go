package session

import (
	"context"
	"fmt"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

// ThreadAPI is the subset of the assistant service a Thread needs.
type ThreadAPI interface {
	AppendMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*llm.Run, error)
}

// Thread is the local handle to one remote conversation thread.
type Thread struct {
	id  string
	api ThreadAPI
}

// NewThread wraps an existing remote thread id.
func NewThread(id string, api ThreadAPI) *Thread {
	return &Thread{id: id, api: api}
}

// ID returns the remote thread id.
func (t *Thread) ID() string {
	return t.id
}

// Append adds a user-role message to the thread.
func (t *Thread) Append(ctx context.Context, text string) error {
	if err := t.api.AppendMessage(ctx, t.id, text); err != nil {
		return fmt.Errorf("thread %s: %w", t.id, err)
	}
	return nil
}

// StartRun starts a run of personaID over the thread and returns its id.
// It does not wait for the run.
func (t *Thread) StartRun(ctx context.Context, personaID string) (string, error) {
	run, err := t.api.CreateRun(ctx, t.id, personaID)
	if err != nil {
		return "", fmt.Errorf("thread %s: %w", t.id, err)
	}
	return run.ID, nil
}
