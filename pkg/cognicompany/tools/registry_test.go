package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

var fixedNow = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC) // a Monday

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]store.Task
}

func (m *memTasks) Put(_ context.Context, t store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks == nil {
		m.tasks = map[string]store.Task{}
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *memTasks) ListByUser(_ context.Context, userID string) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

type memUsers map[string]store.User

func (m memUsers) Get(_ context.Context, id string) (store.User, error) {
	u, ok := m[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

type panickingAssistants struct{}

func (panickingAssistants) ListAssistants(context.Context) ([]llm.Assistant, error) {
	panic("boom")
}

type fileImages struct{ dir string }

func (f fileImages) GenerateImage(_ context.Context, req llm.ImageRequest) ([]string, error) {
	p := filepath.Join(f.dir, "img.png")
	return []string{p}, os.WriteFile(p, []byte(req.Prompt), 0o600)
}

type recordingUploader struct {
	buckets []string
}

func (u *recordingUploader) Upload(_ context.Context, bucket, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	u.buckets = append(u.buckets, bucket)
	return "https://cdn.example.com/" + bucket + "/" + filepath.Base(path), nil
}

func decodeOutput(t *testing.T, out llm.ToolOutput) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Output), &m), out.Output)
	return m
}

func TestDispatchDateTime(t *testing.T) {
	r := NewRegistry(Env{Now: func() time.Time { return fixedNow }}, discardLogger())

	out := r.Dispatch(context.Background(), llm.ToolCall{ID: "call_1", Name: "datetime", Arguments: "{}"})

	assert.Equal(t, "call_1", out.CallID)
	assert.Equal(t, map[string]any{"datetime": "2024-03-04T09:30:00Z", "day": "Monday"}, decodeOutput(t, out))
}

func TestDispatchContainsFailures(t *testing.T) {
	r := NewRegistry(Env{
		Users:      memUsers{},
		Assistants: panickingAssistants{},
	}, discardLogger())

	tests := []struct {
		name string
		call llm.ToolCall
		want string
	}{
		{"unknown tool", llm.ToolCall{ID: "a", Name: "launch_missiles"}, "unknown tool"},
		{"malformed json", llm.ToolCall{ID: "b", Name: "mention", Arguments: "{"}, "not a JSON object"},
		{"missing argument", llm.ToolCall{ID: "c", Name: "mention", Arguments: "{}"}, "required field is missing"},
		{"execution error", llm.ToolCall{ID: "d", Name: "user_lookup", Arguments: `{"id":"nobody"}`}, "not found"},
		{"panic", llm.ToolCall{ID: "e", Name: "assistant_list"}, "panicked"},
		{"unconfigured", llm.ToolCall{ID: "f", Name: "task_list", Arguments: `{"user_id":"u"}`}, "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Dispatch(context.Background(), tt.call)
			assert.Equal(t, tt.call.ID, out.CallID)
			m := decodeOutput(t, out)
			require.Contains(t, m, "error")
			assert.Contains(t, m["error"], tt.want)
		})
	}
}

func TestDispatchUserLookupAndMention(t *testing.T) {
	r := NewRegistry(Env{Users: memUsers{
		"42": {ID: "42", DisplayName: "ada99", Nickname: "Countess"},
	}}, discardLogger())

	out := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "user_lookup", Arguments: `{"id":"42"}`}))
	assert.Equal(t, "Countess", out["name"])

	out = decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "2", Name: "mention", Arguments: `{"id":"42"}`}))
	assert.Equal(t, "<@42>", out["mention_format"])
}

func TestTaskCreateIsIdempotentPerCall(t *testing.T) {
	tasks := &memTasks{}
	r := NewRegistry(Env{Tasks: tasks, Now: func() time.Time { return fixedNow }}, discardLogger())
	call := llm.ToolCall{ID: "call_7", Name: "task_create", Arguments: `{"user_id":"u1","title":"write report"}`}

	first := decodeOutput(t, r.Dispatch(context.Background(), call))
	second := decodeOutput(t, r.Dispatch(context.Background(), call))
	assert.Equal(t, first["id"], second["id"])

	list := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "x", Name: "task_list", Arguments: `{"user_id":"u1"}`}))
	assert.Len(t, list["tasks"], 1)

	done := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "y", Name: "task_complete", Arguments: `{"id":"` + first["id"].(string) + `"}`}))
	assert.Equal(t, true, done["completed"])

	list = decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "z", Name: "task_list", Arguments: `{"user_id":"u1"}`}))
	assert.Empty(t, list["tasks"])
}

func TestImageUploadsAndRemovesLocalFile(t *testing.T) {
	dir := t.TempDir()
	up := &recordingUploader{}
	r := NewRegistry(Env{Images: fileImages{dir: dir}, Uploader: up}, discardLogger())

	out := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "image", Arguments: `{"prompt":"a cat","style":"vivid"}`}))

	assert.Equal(t, []any{"https://cdn.example.com/images/img.png"}, out["urls"])
	assert.Equal(t, []string{"images"}, up.buckets)
	_, err := os.Stat(filepath.Join(dir, "img.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "local file removed after upload")
}

func TestDefinitionsOnlyListAvailableTools(t *testing.T) {
	r := NewRegistry(Env{}, discardLogger())

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
	assert.Equal(t, []string{"datetime", "mention", "web_scrape"}, names)
}

type voiceSpeech struct {
	dir    string
	voices []string
}

func (s *voiceSpeech) Synthesize(_ context.Context, text, voice string) (string, error) {
	s.voices = append(s.voices, voice)
	p := filepath.Join(s.dir, voice+".mp3")
	return p, os.WriteFile(p, []byte(text), 0o600)
}

func TestTTSVoicePrecedence(t *testing.T) {
	speech := &voiceSpeech{dir: t.TempDir()}
	r := NewRegistry(Env{Speech: speech, Uploader: &recordingUploader{}, DefaultVoice: "nova"}, discardLogger())
	personaCtx := WithVoice(context.Background(), "onyx")

	r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "tts", Arguments: `{"content":"hi"}`})
	r.Dispatch(personaCtx, llm.ToolCall{ID: "2", Name: "tts", Arguments: `{"content":"hi"}`})
	r.Dispatch(personaCtx, llm.ToolCall{ID: "3", Name: "tts", Arguments: `{"content":"hi","voice":"echo"}`})

	assert.Equal(t, []string{"nova", "onyx", "echo"}, speech.voices)
}
