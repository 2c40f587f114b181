package copilot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

const testWebhook = "https://discord.com/api/webhooks/900/tok"

type sent struct {
	channelID string
	msg       channels.OutgoingMessage
}

type fakeGateway struct {
	messages chan *channels.IncomingMessage
	commands chan *channels.Command

	mu       sync.Mutex
	sent     []sent
	webhooks int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages: make(chan *channels.IncomingMessage, 8),
		commands: make(chan *channels.Command, 8),
	}
}

func (g *fakeGateway) Name() string                               { return "fake" }
func (g *fakeGateway) Start(context.Context) error                { return nil }
func (g *fakeGateway) Stop() error                                { return nil }
func (g *fakeGateway) Messages() <-chan *channels.IncomingMessage { return g.messages }
func (g *fakeGateway) Commands() <-chan *channels.Command         { return g.commands }
func (g *fakeGateway) SendTyping(context.Context, string) error   { return nil }

func (g *fakeGateway) Send(_ context.Context, channelID string, msg *channels.OutgoingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{channelID: channelID, msg: *msg})
	return nil
}

func (g *fakeGateway) CreateWebhook(context.Context, string, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.webhooks++
	return testWebhook, nil
}

func (g *fakeGateway) outbox() []sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sent(nil), g.sent...)
}

// fakeService answers every run with one datetime tool call followed by a
// fixed reply, or fails every run when fail is set.
type fakeService struct {
	fail       bool
	assistants []llm.Assistant

	mu        sync.Mutex
	threads   int
	runs      int
	appended  []string
	submitted map[string][]llm.ToolOutput
	tools     map[string][]llm.FunctionDefinition
}

func (s *fakeService) CreateThread(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads++
	return fmt.Sprintf("thread_%d", s.threads), nil
}

func (s *fakeService) AppendMessage(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, text)
	return nil
}

func (s *fakeService) CreateRun(_ context.Context, threadID, assistantID string) (*llm.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return &llm.Run{ID: fmt.Sprintf("run_%d", s.runs), ThreadID: threadID, AssistantID: assistantID, Status: llm.StatusQueued}, nil
}

func (s *fakeService) RetrieveRun(_ context.Context, threadID, runID string) (*llm.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &llm.Run{ID: runID, ThreadID: threadID}
	switch {
	case s.fail:
		run.Status, run.LastError = llm.StatusFailed, "server_error"
	case s.submitted[runID] == nil:
		run.Status = llm.StatusRequiresAction
		run.ToolCalls = []llm.ToolCall{{ID: "call_1", Name: "datetime", Arguments: "{}"}}
	default:
		run.Status = llm.StatusCompleted
	}
	return run, nil
}

func (s *fakeService) SubmitToolOutputs(_ context.Context, _, runID string, outputs []llm.ToolOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted == nil {
		s.submitted = map[string][]llm.ToolOutput{}
	}
	s.submitted[runID] = outputs
	return nil
}

func (s *fakeService) CancelRun(context.Context, string, string) error { return nil }

func (s *fakeService) LatestAssistantMessage(context.Context, string, string) ([]llm.ContentBlock, error) {
	return []llm.ContentBlock{{Kind: llm.ContentText, Text: "It is noon."}}, nil
}

func (s *fakeService) ListAssistants(context.Context) ([]llm.Assistant, error) {
	return s.assistants, nil
}

func (s *fakeService) UpdateAssistantMetadata(context.Context, string, map[string]string) error {
	return nil
}

func (s *fakeService) UpdateAssistantTools(_ context.Context, id string, defs []llm.FunctionDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tools == nil {
		s.tools = map[string][]llm.FunctionDefinition{}
	}
	s.tools[id] = defs
	return nil
}

func (s *fakeService) snapshot() (appended []string, submitted map[string][]llm.ToolOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]llm.ToolOutput, len(s.submitted))
	for k, v := range s.submitted {
		out[k] = v
	}
	return append([]string(nil), s.appended...), out
}

type harness struct {
	assistant *Assistant
	gateway   *fakeGateway
	service   *fakeService
	db        *store.DB
}

func start(t *testing.T, svc *fakeService) *harness {
	t.Helper()
	return startWith(t, svc, nil, nil)
}

// startWith starts an Assistant with an optional media backend and config
// adjustments.
func startWith(t *testing.T, svc *fakeService, m llm.Media, tweak func(*config.Config)) *harness {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.DefaultPersona = "asst_default"
	cfg.Runner.PollInterval = time.Millisecond
	cfg.Media.ImageDir = t.TempDir()
	cfg.Media.VoiceDir = t.TempDir()
	cfg.Media.DownloadDir = t.TempDir()
	if tweak != nil {
		tweak(cfg)
	}

	gw := newFakeGateway()
	a, err := New(cfg, Deps{
		Gateway:    gw,
		Threads:    svc,
		Assistants: svc,
		Media:      m,
		DB:         db,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	return &harness{assistant: a, gateway: gw, service: svc, db: db}
}

func (h *harness) waitForMessages(t *testing.T, n int) []sent {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.gateway.outbox()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.gateway.outbox()
}

func (h *harness) command(t *testing.T, name, channelID string, opts map[string]string) string {
	t.Helper()
	reply, _ := h.commandWithFiles(t, name, channelID, opts)
	return reply
}

// commandWithFiles runs a command and returns its reply and the contents of
// the attached files, read while the reply is being sent.
func (h *harness) commandWithFiles(t *testing.T, name, channelID string, opts map[string]string) (string, []attachment) {
	t.Helper()
	type answer struct {
		content string
		files   []attachment
	}
	replies := make(chan answer, 1)
	h.gateway.commands <- &channels.Command{
		Name:      name,
		ChannelID: channelID,
		UserID:    "u1",
		UserName:  "Ada",
		Options:   opts,
		Respond: func(_ context.Context, content string, files ...string) error {
			a := answer{content: content}
			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				a.files = append(a.files, attachment{path: f, data: string(data)})
			}
			replies <- a
			return nil
		},
	}
	select {
	case r := <-replies:
		return r.content, r.files
	case <-time.After(2 * time.Second):
		t.Fatalf("command %s got no reply", name)
		return "", nil
	}
}

type attachment struct {
	path string
	data string
}

func TestTriggeredMessageGetsReply(t *testing.T) {
	h := start(t, &fakeService{})

	h.gateway.messages <- &channels.IncomingMessage{
		ID:         "m1",
		ChannelID:  "c1",
		AuthorID:   "u1",
		AuthorName: "Ada",
		Content:    "lovelace, what time is it?",
	}

	out := h.waitForMessages(t, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].channelID)
	assert.Equal(t, "It is noon.", out[0].msg.Content)
	assert.Empty(t, out[0].msg.WebhookURL, "default persona answers as the bot")

	appended, submitted := h.service.snapshot()
	assert.Equal(t, []string{"u1: lovelace, what time is it?"}, appended)
	require.Len(t, submitted["run_1"], 1)
	assert.Equal(t, "call_1", submitted["run_1"][0].CallID)
	assert.Contains(t, submitted["run_1"][0].Output, `"datetime"`)

	cfg, err := store.NewChannelStore(h.db).Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", cfg.ThreadID)
	assert.Equal(t, testWebhook, cfg.WebhookURL)

	u, err := store.NewUserStore(h.db).Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name())
}

func TestUntriggeredMessageIsRecordedOnly(t *testing.T) {
	h := start(t, &fakeService{})

	h.gateway.messages <- &channels.IncomingMessage{ChannelID: "c1", AuthorID: "u1", Content: "just chatting"}

	require.Eventually(t, func() bool {
		appended, _ := h.service.snapshot()
		return len(appended) == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.gateway.outbox())
}

func TestActivePersonaRepliesThroughWebhook(t *testing.T) {
	svc := &fakeService{assistants: []llm.Assistant{
		{ID: "asst_ada", Name: "Ada", Metadata: map[string]string{"avatar": "https://img/ada.png"}},
		{ID: "asst_grace", Name: "Grace"},
	}}
	h := start(t, svc)

	reply := h.command(t, channels.CommandPersonas, "c1", map[string]string{"ids": "asst_ada, asst_gone"})
	assert.Contains(t, reply, "Active assistants: Ada")
	assert.Contains(t, reply, "Unknown ids: asst_gone")

	h.gateway.messages <- &channels.IncomingMessage{ChannelID: "c1", AuthorID: "u1", Content: "Ada, what time is it? grace stays quiet"}

	out := h.waitForMessages(t, 1)
	require.Len(t, out, 1)
	assert.Equal(t, testWebhook, out[0].msg.WebhookURL)
	assert.Equal(t, "Ada", out[0].msg.Username)
	assert.Equal(t, "https://img/ada.png", out[0].msg.AvatarURL)
	assert.Equal(t, 1, h.gateway.webhooks, "channel bootstrapped once")
}

func TestFailedRunPostsError(t *testing.T) {
	h := start(t, &fakeService{fail: true})

	h.gateway.messages <- &channels.IncomingMessage{ChannelID: "c1", AuthorID: "u1", Content: "Lovelace?"}

	out := h.waitForMessages(t, 1)
	assert.True(t, strings.HasPrefix(out[0].msg.Content, "error: "), out[0].msg.Content)
	assert.Contains(t, out[0].msg.Content, "server_error")
}

func TestResetCommand(t *testing.T) {
	h := start(t, &fakeService{})

	assert.Equal(t, "This channel has no conversation yet.", h.command(t, channels.CommandReset, "c9", nil))

	h.gateway.messages <- &channels.IncomingMessage{ChannelID: "c9", AuthorID: "u1", Content: "hello"}
	require.Eventually(t, func() bool {
		appended, _ := h.service.snapshot()
		return len(appended) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "Conversation reset. Starting a new thread.", h.command(t, channels.CommandReset, "c9", nil))

	cfg, err := store.NewChannelStore(h.db).Get(context.Background(), "c9")
	require.NoError(t, err)
	assert.Equal(t, "thread_2", cfg.ThreadID)
	assert.Equal(t, testWebhook, cfg.WebhookURL)
}

func TestRegisterCommand(t *testing.T) {
	h := start(t, &fakeService{})

	assert.Equal(t, "Registered as Countess.", h.command(t, channels.CommandRegister, "c1", map[string]string{"name": "Countess"}))
	assert.Equal(t, "Registered as Countess.", h.command(t, channels.CommandRegister, "c1", nil), "preferred name is kept")
}

func TestSyncPersonaTools(t *testing.T) {
	svc := &fakeService{assistants: []llm.Assistant{{ID: "asst_a", Name: "A"}, {ID: "asst_b", Name: "B"}}}
	h := start(t, svc)

	n, err := h.assistant.SyncPersonaTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var names []string
	for _, d := range svc.tools["asst_a"] {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "datetime")
	assert.Contains(t, names, "task_create")
	assert.NotContains(t, names, "image", "media tools need a media backend")
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, Deps{}, nil)
	assert.Error(t, err)
}
