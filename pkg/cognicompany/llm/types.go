// Package llm is the boundary to the hosted assistant service. The rest of
// the module sees threads, runs and tool calls as plain values defined here;
// openai.go is the only file that speaks the provider SDK.
package llm

import "context"

// RunStatus is the remote status of a run.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCancelling     RunStatus = "cancelling"
	StatusCancelled      RunStatus = "cancelled"
	StatusFailed         RunStatus = "failed"
	StatusCompleted      RunStatus = "completed"
	StatusIncomplete     RunStatus = "incomplete"
	StatusExpired        RunStatus = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete:
		return true
	}
	return false
}

// Run is a snapshot of one execution of a persona over a thread.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus

	// ToolCalls holds the pending calls while Status is StatusRequiresAction.
	ToolCalls []ToolCall

	// LastError is the service-provided failure reason, if any.
	LastError string
}

// ToolCall is a request by the assistant to invoke a named capability.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolOutput answers exactly one ToolCall.
type ToolOutput struct {
	CallID string
	Output string
}

// ContentKind classifies a message content block.
type ContentKind string

const (
	ContentText      ContentKind = "text"
	ContentImageFile ContentKind = "image_file"
	ContentImageURL  ContentKind = "image_url"
	ContentRefusal   ContentKind = "refusal"
)

// ContentBlock is one part of an assistant message.
type ContentBlock struct {
	Kind ContentKind
	Text string
}

// Assistant describes a persona as registered with the service.
type Assistant struct {
	ID           string
	Name         string
	Description  string
	Model        string
	Instructions string
	Metadata     map[string]string
}

// FunctionDefinition advertises a tool to the service.
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ImageRequest parameterizes image generation.
type ImageRequest struct {
	Prompt  string
	Model   string
	Quality string
	Style   string
	Size    string
}

// Threads covers the thread and run operations.
type Threads interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	CancelRun(ctx context.Context, threadID, runID string) error

	// LatestAssistantMessage returns the content of the newest
	// assistant-authored message produced by runID.
	LatestAssistantMessage(ctx context.Context, threadID, runID string) ([]ContentBlock, error)
}

// Assistants covers persona administration.
type Assistants interface {
	ListAssistants(ctx context.Context) ([]Assistant, error)
	UpdateAssistantMetadata(ctx context.Context, assistantID string, metadata map[string]string) error
	UpdateAssistantTools(ctx context.Context, assistantID string, defs []FunctionDefinition) error
}

// Media covers generation endpoints used by tools.
type Media interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([][]byte, error)
	Speech(ctx context.Context, text, model, voice string) ([]byte, error)
	Transcribe(ctx context.Context, path, model string) (string, error)
}
