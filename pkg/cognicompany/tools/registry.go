// Package tools implements the capabilities a persona may invoke during a
// run. Every tool is a Kind with a typed argument struct; Registry.Dispatch
// turns a ToolCall into exactly one ToolOutput and never fails the caller:
// unknown tools, bad arguments, execution errors and panics all become a
// structured {"error": "..."} output.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

// ErrUnknownTool is returned for a call naming no known tool.
var ErrUnknownTool = errors.New("unknown tool")

// UserDirectory looks users up by id.
type UserDirectory interface {
	Get(ctx context.Context, id string) (store.User, error)
}

// TaskRepository persists tasks.
type TaskRepository interface {
	Put(ctx context.Context, t store.Task) error
	ListByUser(ctx context.Context, userID string) ([]store.Task, error)
	Delete(ctx context.Context, id string) error
}

// AssistantLister lists the personas known to the assistant service.
type AssistantLister interface {
	ListAssistants(ctx context.Context) ([]llm.Assistant, error)
}

// ImageGenerator generates images and returns their local file paths.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req llm.ImageRequest) ([]string, error)
}

// SpeechSynthesizer renders text to a local audio file.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Transcriber turns a media link into text.
type Transcriber interface {
	Transcribe(ctx context.Context, url string) (string, error)
}

// Uploader publishes a local file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, localPath string) (string, error)
}

// Env is the ambient context tools execute against. Nil collaborators
// disable the tools that need them.
type Env struct {
	Users       UserDirectory
	Tasks       TaskRepository
	Assistants  AssistantLister
	Images      ImageGenerator
	Speech      SpeechSynthesizer
	Transcriber Transcriber
	Uploader    Uploader

	ImageBucket  string
	AudioBucket  string
	ImageModel   string
	DefaultVoice string

	HTTPClient *http.Client
	Now        func() time.Time

	// Hosts limits what web_scrape may fetch. Nil allows every host.
	Hosts *HostGuard
}

// tool is the static description of one Kind.
type tool struct {
	description string
	schema      map[string]any
}

var catalog = map[Kind]tool{
	KindDateTime: {
		description: "Get the current date, time and day of the week.",
		schema:      CreateSchema(DateTimeArgs{}),
	},
	KindUserLookup: {
		description: "Look up a chat user by id and get the name to address them by.",
		schema:      CreateSchema(UserLookupArgs{}),
	},
	KindMention: {
		description: "Get the text that mentions (pings) a chat user.",
		schema:      CreateSchema(MentionArgs{}),
	},
	KindTaskCreate: {
		description: "Create a task for a user.",
		schema:      CreateSchema(TaskCreateArgs{}),
	},
	KindTaskList: {
		description: "List the open tasks of a user.",
		schema:      CreateSchema(TaskListArgs{}),
	},
	KindTaskComplete: {
		description: "Mark a task as done, removing it.",
		schema:      CreateSchema(TaskCompleteArgs{}),
	},
	KindImage: {
		description: "Generate an image from a prompt. Returns public URLs of the images.",
		schema:      CreateSchema(ImageArgs{}),
	},
	KindTTS: {
		description: "Convert text to speech. Returns a public URL of the mp3.",
		schema:      CreateSchema(TTSArgs{}),
	},
	KindTranscribe: {
		description: "Transcribe the audio of a video or audio link.",
		schema:      CreateSchema(TranscribeArgs{}),
	},
	KindAssistantList: {
		description: "List the available assistants with their ids, names and metadata.",
		schema:      CreateSchema(AssistantListArgs{}),
	},
	KindWebScrape: {
		description: "Fetch a web page and return its readable text.",
		schema:      CreateSchema(WebScrapeArgs{}),
	},
}

// Registry dispatches tool calls.
type Registry struct {
	env    Env
	logger *slog.Logger
}

// NewRegistry creates a registry over env.
func NewRegistry(env Env, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.HTTPClient == nil {
		env.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if env.ImageBucket == "" {
		env.ImageBucket = "images"
	}
	if env.AudioBucket == "" {
		env.AudioBucket = "audio"
	}
	if env.ImageModel == "" {
		env.ImageModel = "dall-e-3"
	}
	if env.DefaultVoice == "" {
		env.DefaultVoice = "nova"
	}
	return &Registry{env: env, logger: logger.With("component", "tools")}
}

// Available reports whether the collaborators kind needs are configured.
func (r *Registry) Available(kind Kind) bool {
	switch kind {
	case KindDateTime, KindMention, KindWebScrape:
		return true
	case KindUserLookup:
		return r.env.Users != nil
	case KindTaskCreate, KindTaskList, KindTaskComplete:
		return r.env.Tasks != nil
	case KindImage:
		return r.env.Images != nil && r.env.Uploader != nil
	case KindTTS:
		return r.env.Speech != nil && r.env.Uploader != nil
	case KindTranscribe:
		return r.env.Transcriber != nil
	case KindAssistantList:
		return r.env.Assistants != nil
	default:
		return false
	}
}

// Definitions returns the function definitions of every available tool, in
// Kind order, ready to advertise to the assistant service.
func (r *Registry) Definitions() []llm.FunctionDefinition {
	var defs []llm.FunctionDefinition
	for _, kind := range AllKinds() {
		if !r.Available(kind) {
			continue
		}
		t := catalog[kind]
		defs = append(defs, llm.FunctionDefinition{
			Name:        kind.String(),
			Description: t.description,
			Parameters:  t.schema,
		})
	}
	return defs
}

// Dispatch executes call and always returns an output for call.ID.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (out llm.ToolOutput) {
	start := time.Now()
	logger := r.logger.With("tool", call.Name, "call_id", call.ID)
	out.CallID = call.ID

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "panic", p)
			out.Output = errorOutput(fmt.Errorf("tool %s panicked: %v", call.Name, p))
		}
	}()

	result, err := r.execute(ctx, call)
	if err != nil {
		logger.Warn("tool failed",
			"args", summarize(call.Arguments, 200),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		out.Output = errorOutput(err)
		return out
	}

	data, err := json.Marshal(result)
	if err != nil {
		out.Output = errorOutput(fmt.Errorf("encoding result: %w", err))
		return out
	}

	out.Output = string(data)
	logger.Info("tool executed",
		"args", summarize(call.Arguments, 200),
		"result", summarize(out.Output, 100),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (r *Registry) execute(ctx context.Context, call llm.ToolCall) (any, error) {
	kind := ParseKind(call.Name)
	if kind != KindUnknown && !r.Available(kind) {
		return nil, fmt.Errorf("tool %s is not configured", call.Name)
	}

	switch kind {
	case KindDateTime:
		return run(ctx, kind, call, r.dateTime)
	case KindUserLookup:
		return run(ctx, kind, call, r.userLookup)
	case KindMention:
		return run(ctx, kind, call, r.mention)
	case KindTaskCreate:
		return run(ctx, kind, call, func(ctx context.Context, args TaskCreateArgs) (any, error) {
			return r.taskCreate(ctx, call.ID, args)
		})
	case KindTaskList:
		return run(ctx, kind, call, r.taskList)
	case KindTaskComplete:
		return run(ctx, kind, call, r.taskComplete)
	case KindImage:
		return run(ctx, kind, call, r.image)
	case KindTTS:
		return run(ctx, kind, call, r.tts)
	case KindTranscribe:
		return run(ctx, kind, call, r.transcribe)
	case KindAssistantList:
		return run(ctx, kind, call, r.assistantList)
	case KindWebScrape:
		return run(ctx, kind, call, r.webScrape)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
}

// run decodes and validates the call's arguments into A, then invokes fn.
func run[A any](ctx context.Context, kind Kind, call llm.ToolCall, fn func(context.Context, A) (any, error)) (any, error) {
	var args A
	if err := decodeArgs(call.Arguments, catalog[kind].schema, &args); err != nil {
		return nil, err
	}
	return fn(ctx, args)
}

func decodeArgs(raw string, schema map[string]any, dst any) error {
	if raw == "" {
		raw = "{}"
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return &ArgumentError{Message: fmt.Sprintf("arguments are not a JSON object: %v", err)}
	}
	if err := ValidateParameters(params, schema); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &ArgumentError{Message: err.Error()}
	}
	return nil
}

func errorOutput(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
