// Package copilot wires the relay together. It receives chat events from
// the gateway, keeps each channel bound to its conversation thread, drives
// persona runs and posts their replies back.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/media"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/persona"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/relay"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/retry"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/runner"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/session"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/tools"
)

// typingInterval refreshes the typing indicator, which the chat platform
// clears after roughly ten seconds.
const typingInterval = 8 * time.Second

// Deps are the external collaborators of an Assistant.
type Deps struct {
	// Gateway is the chat platform. It may be nil for administrative use
	// without a live connection; Start then fails.
	Gateway channels.Gateway

	Threads    llm.Threads
	Assistants llm.Assistants

	// Media enables the image, speech and transcription tools. Optional.
	Media llm.Media

	// Uploader publishes generated media. Optional.
	Uploader tools.Uploader

	DB         *store.DB
	HTTPClient *http.Client
}

// Assistant is the relay daemon.
// Message flow: receive → resolve channel → append → select personas →
// run each persona → relay reply.
type Assistant struct {
	config  *config.Config
	gateway channels.Gateway

	channelStore *store.ChannelStore
	userStore    *store.UserStore
	taskStore    *store.TaskStore

	sessions *session.Store
	runner   *runner.Runner
	tools    *tools.Registry
	relay    *relay.Relay
	personas *persona.Registry
	janitor  *media.Janitor
	files    *media.Files // nil without a media backend
	hosts    *tools.HostGuard
	llm      llm.Assistants

	scheduler *cron.Cron

	wg     sync.WaitGroup
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Assistant from cfg and deps.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Assistant, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.DB == nil {
		return nil, errors.New("copilot: database is required")
	}
	if deps.Threads == nil || deps.Assistants == nil {
		return nil, errors.New("copilot: assistant service is required")
	}

	a := &Assistant{
		config:       cfg,
		gateway:      deps.Gateway,
		channelStore: store.NewChannelStore(deps.DB),
		userStore:    store.NewUserStore(deps.DB),
		taskStore:    store.NewTaskStore(deps.DB),
		llm:          deps.Assistants,
		logger:       logger,
		ctx:          context.Background(),
	}

	a.personas = persona.NewRegistry(cfg.Personas, deps.Assistants, logger)

	env := tools.Env{
		Users:        a.userStore,
		Tasks:        a.taskStore,
		Assistants:   deps.Assistants,
		Uploader:     deps.Uploader,
		ImageBucket:  cfg.Storage.ImageBucket,
		AudioBucket:  cfg.Storage.AudioBucket,
		ImageModel:   cfg.Media.ImageModel,
		DefaultVoice: cfg.Media.DefaultVoice,
		HTTPClient:   deps.HTTPClient,
		Hosts: &tools.HostGuard{
			AllowedHosts: cfg.Tools.ScrapeAllowedHosts,
			BlockPrivate: cfg.Tools.ScrapeBlockPrivate,
		},
	}
	a.hosts = env.Hosts
	if deps.Media != nil {
		a.files = media.New(deps.Media, cfg.Media, logger)
		env.Images, env.Speech, env.Transcriber = a.files, a.files, a.files
	}
	a.tools = tools.NewRegistry(env, logger)

	a.runner = runner.New(deps.Threads, a.tools, runner.Config{
		PollInterval: cfg.Runner.PollInterval,
		MaxWait:      cfg.Runner.MaxWait,
		PollRetry: retry.Config{
			MaxRetries: cfg.Runner.PollRetries,
			BaseDelay:  cfg.Runner.PollRetryBaseDelay,
			MaxDelay:   cfg.Runner.PollRetryMaxDelay,
			Multiplier: 2.0,
			Jitter:     true,
		},
	}, logger)

	opts := session.Options{
		Threads:     deps.Threads,
		Channels:    a.channelStore,
		Users:       a.userStore,
		WebhookName: cfg.Discord.WebhookName,
	}
	if deps.Gateway != nil {
		opts.Webhooks = deps.Gateway
		a.relay = relay.New(deps.Gateway, cfg.Relay.ChunkBudget, logger)
	}
	a.sessions = session.NewStore(opts, logger)
	a.sessions.SetRunCanceller(a.runner)

	a.janitor = media.NewJanitor(
		[]string{cfg.Media.ImageDir, cfg.Media.VoiceDir, cfg.Media.DownloadDir},
		cfg.Janitor.MediaMaxAge, logger,
	)

	return a, nil
}

// Start connects the gateway and starts processing events.
func (a *Assistant) Start(ctx context.Context) error {
	if a.gateway == nil {
		return errors.New("copilot: no gateway configured")
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("starting cognicompany",
		"name", a.config.Name,
		"gateway", a.gateway.Name(),
		"default_persona", a.config.DefaultPersona,
		"tools", len(a.tools.Definitions()),
	)

	// 1. Load personas. A failure here is not fatal; the static list still works.
	if err := a.personas.Refresh(a.ctx); err != nil {
		a.logger.Warn("persona refresh failed", "error", err)
	}

	// 2. Background jobs.
	if err := a.initScheduler(); err != nil {
		a.cancel()
		return err
	}

	// 3. Connect the gateway.
	if err := a.gateway.Start(a.ctx); err != nil {
		a.cancel()
		a.stopScheduler()
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// 4. Event loop.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.messageLoop()
	}()

	a.logger.Info("cognicompany started")
	return nil
}

// Stop aborts in-flight runs, disconnects the gateway and waits for the
// event handlers to return.
func (a *Assistant) Stop() {
	a.logger.Info("stopping cognicompany...")

	if n := a.runner.CancelAll(); n > 0 {
		a.logger.Info("aborted in-flight runs", "runs", n)
	}
	if a.cancel != nil {
		a.cancel()
	}

	a.stopScheduler()
	if a.gateway != nil {
		if err := a.gateway.Stop(); err != nil {
			a.logger.Warn("gateway stop failed", "error", err)
		}
	}
	a.wg.Wait()

	a.logger.Info("cognicompany stopped")
}

// Tools returns the capability registry.
func (a *Assistant) Tools() *tools.Registry { return a.tools }

// Personas returns the persona registry.
func (a *Assistant) Personas() *persona.Registry { return a.personas }

// Channels returns the persisted channel configurations.
func (a *Assistant) Channels(ctx context.Context) ([]store.ChannelConfiguration, error) {
	return a.channelStore.List(ctx)
}

// messageLoop dispatches every inbound event to its own goroutine.
func (a *Assistant) messageLoop() {
	messages := a.gateway.Messages()
	commands := a.gateway.Commands()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			a.spawn(func() { a.handleMessage(msg) })

		case cmd, ok := <-commands:
			if !ok {
				return
			}
			a.spawn(func() { a.handleCommand(cmd) })

		case <-a.ctx.Done():
			return
		}
	}
}

func (a *Assistant) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// handleMessage processes one chat message:
// resolve → append → select → run → relay.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	start := time.Now()
	logger := a.logger.With(
		"channel_id", msg.ChannelID,
		"author_id", msg.AuthorID,
		"msg_id", msg.ID,
	)

	if msg.FromSelf || strings.TrimSpace(msg.Content) == "" {
		return
	}
	if isTranscribeCommand(msg.Content) {
		a.handleTranscribe(msg, logger)
		return
	}

	logger.Info("incoming message",
		"content_preview", truncate(msg.Content, 50),
		"webhook", msg.WebhookID != "",
	)

	// ── Step 1: Resolve the channel's session ──
	// First contact provisions the webhook and the remote thread.
	cfg, thread, err := a.sessions.Resolve(a.ctx, msg.ChannelID, store.User{
		ID:          msg.AuthorID,
		DisplayName: msg.AuthorName,
		Nickname:    msg.AuthorNickname,
		Bot:         msg.AuthorBot,
	})
	if err != nil {
		logger.Error("failed to resolve channel", "error", err)
		return
	}
	logger = logger.With("thread_id", thread.ID())

	// ── Step 2: Append to the shared thread ──
	// Every message is recorded so personas see the whole conversation,
	// including each other's replies.
	if err := thread.Append(a.ctx, msg.AuthorID+": "+msg.Content); err != nil {
		logger.Error("failed to append message", "error", err)
		return
	}

	// ── Step 3: Select personas ──
	active, missing := a.personas.Lookup(cfg.ActivePersonaIDs)
	if len(missing) > 0 {
		logger.Warn("active personas unknown", "ids", missing)
	}
	webhookID, _, _ := channels.ParseWebhookURL(cfg.WebhookURL)

	fallback, ok := a.personas.Get(a.config.DefaultPersona)
	if !ok {
		fallback = persona.Persona{ID: a.config.DefaultPersona}
	}

	selected := persona.Select(msg, active, fallback, a.config.Trigger, webhookID)
	if len(selected) == 0 {
		return
	}

	// ── Step 4: Run each persona ──
	// A thread accepts one active run at a time, so personas answer in turn.
	for _, p := range selected {
		if a.ctx.Err() != nil {
			return
		}
		a.respond(logger, msg.ChannelID, thread, p, a.identity(cfg, p, len(active) == 0))
	}

	logger.Info("message processed",
		"personas", len(selected),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// respond drives one persona run and relays its outcome.
func (a *Assistant) respond(logger *slog.Logger, channelID string, thread *session.Thread, p persona.Persona, id relay.Identity) {
	logger = logger.With("persona", p.ID)

	stopTyping := a.startTyping(channelID, logger)
	res, err := a.runner.Run(tools.WithVoice(a.ctx, p.Voice), runner.Request{
		ChannelID: channelID,
		Thread:    thread,
		PersonaID: p.ID,
	})
	stopTyping()

	if err != nil {
		if errors.Is(err, runner.ErrAborted) || a.ctx.Err() != nil {
			logger.Info("run aborted", "error", err)
			return
		}
		logger.Error("run failed", "error", err)
		if derr := a.relay.DeliverError(a.ctx, channelID, id, err); derr != nil {
			logger.Error("failed to deliver error message", "error", derr)
		}
		return
	}

	logger = logger.With("run_id", res.RunID)
	if err := a.relay.Deliver(a.ctx, channelID, id, res.Content); err != nil {
		logger.Error("failed to deliver reply", "error", err)
		return
	}

	logger.Info("persona replied",
		"polls", res.Polls,
		"tool_calls", res.ToolCalls,
		"duration_ms", res.Duration.Milliseconds(),
	)
}

// identity picks who a persona posts as. The default persona answering a
// triggered message speaks as the bot; active personas post through their
// webhook under their own name and avatar.
func (a *Assistant) identity(cfg store.ChannelConfiguration, p persona.Persona, asBot bool) relay.Identity {
	if asBot {
		return relay.Identity{}
	}
	webhook := p.WebhookURL
	if webhook == "" {
		webhook = cfg.WebhookURL
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return relay.Identity{WebhookURL: webhook, Username: name, AvatarURL: p.AvatarURL}
}

// startTyping keeps the typing indicator on until the returned func is called.
func (a *Assistant) startTyping(channelID string, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(a.ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := a.gateway.SendTyping(ctx, channelID); err != nil && ctx.Err() == nil {
				logger.Debug("typing indicator failed", "error", err)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
