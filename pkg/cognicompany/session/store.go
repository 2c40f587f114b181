// Package session maps chat channels to remote conversation threads.
//
// Store.Resolve returns the channel's configuration and its Thread, creating
// the remote thread and the relay webhook on first contact. Creation is
// serialized per channel id so concurrent first messages create one thread;
// the lock covers only the check-then-create, never a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

// ErrChannelNotConfigured is returned by administrative operations on a
// channel the relay has never seen.
var ErrChannelNotConfigured = errors.New("channel not configured")

// ThreadService creates remote threads and backs the Thread handles.
type ThreadService interface {
	ThreadAPI
	CreateThread(ctx context.Context) (string, error)
}

// WebhookProvisioner creates the channel-scoped webhook personas post through.
type WebhookProvisioner interface {
	CreateWebhook(ctx context.Context, channelID, name string) (string, error)
}

// ChannelRepository persists channel configurations.
type ChannelRepository interface {
	Get(ctx context.Context, channelID string) (store.ChannelConfiguration, error)
	Put(ctx context.Context, cfg store.ChannelConfiguration) error
}

// UserRepository records users seen by the relay.
type UserRepository interface {
	Upsert(ctx context.Context, u store.User) error
}

// RunCanceller aborts in-flight runs of a channel.
type RunCanceller interface {
	CancelChannel(channelID string) int
}

// Options configures a Store.
type Options struct {
	Threads     ThreadService
	Webhooks    WebhookProvisioner
	Channels    ChannelRepository
	Users       UserRepository
	WebhookName string
}

// Store resolves channels to threads.
type Store struct {
	threads     ThreadService
	webhooks    WebhookProvisioner
	channels    ChannelRepository
	users       UserRepository
	webhookName string

	locks *keyedMutex

	mu      sync.RWMutex
	handles map[string]*Thread // by channel id

	cancelMu  sync.RWMutex
	canceller RunCanceller

	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WebhookName == "" {
		opts.WebhookName = "cognicompany"
	}
	return &Store{
		threads:     opts.Threads,
		webhooks:    opts.Webhooks,
		channels:    opts.Channels,
		users:       opts.Users,
		webhookName: opts.WebhookName,
		locks:       newKeyedMutex(),
		handles:     make(map[string]*Thread),
		logger:      logger.With("component", "sessions"),
	}
}

// SetRunCanceller wires the registry used by Reset to abort in-flight runs.
func (s *Store) SetRunCanceller(c RunCanceller) {
	s.cancelMu.Lock()
	s.canceller = c
	s.cancelMu.Unlock()
}

// Resolve returns the configuration and thread of channelID, creating both
// on first contact. When user has an id it is upserted into the user
// directory. Nothing is persisted unless both the webhook and the thread
// were created.
func (s *Store) Resolve(ctx context.Context, channelID string, user store.User) (store.ChannelConfiguration, *Thread, error) {
	cfg, thread, err := s.resolve(ctx, channelID)
	if err != nil {
		return cfg, nil, err
	}

	if user.ID != "" && s.users != nil {
		if err := s.users.Upsert(ctx, user); err != nil {
			s.logger.Warn("failed to record user", "user_id", user.ID, "error", err)
		}
	}
	return cfg, thread, nil
}

func (s *Store) resolve(ctx context.Context, channelID string) (store.ChannelConfiguration, *Thread, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	cfg, err := s.channels.Get(ctx, channelID)
	switch {
	case err == nil:
		return cfg, s.handle(cfg), nil
	case !errors.Is(err, store.ErrNotFound):
		return cfg, nil, fmt.Errorf("loading channel %s: %w", channelID, err)
	}

	if s.webhooks == nil {
		return cfg, nil, fmt.Errorf("%w: %s (no gateway to provision it)", ErrChannelNotConfigured, channelID)
	}

	webhookURL, err := s.webhooks.CreateWebhook(ctx, channelID, s.webhookName)
	if err != nil {
		return cfg, nil, fmt.Errorf("provisioning webhook for channel %s: %w", channelID, err)
	}

	threadID, err := s.threads.CreateThread(ctx)
	if err != nil {
		return cfg, nil, fmt.Errorf("creating thread for channel %s: %w", channelID, err)
	}

	cfg = store.ChannelConfiguration{
		ChannelID:        channelID,
		ThreadID:         threadID,
		WebhookURL:       webhookURL,
		ActivePersonaIDs: []string{},
	}
	if err := s.channels.Put(ctx, cfg); err != nil {
		return cfg, nil, fmt.Errorf("saving channel %s: %w", channelID, err)
	}

	s.logger.Info("channel bootstrapped", "channel_id", channelID, "thread_id", threadID)
	return cfg, s.handle(cfg), nil
}

// handle returns the cached Thread for cfg, replacing it when the persisted
// thread id changed.
func (s *Store) handle(cfg store.ChannelConfiguration) *Thread {
	s.mu.RLock()
	t, ok := s.handles[cfg.ChannelID]
	s.mu.RUnlock()
	if ok && t.ID() == cfg.ThreadID {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.handles[cfg.ChannelID]; ok && t.ID() == cfg.ThreadID {
		return t
	}
	t = NewThread(cfg.ThreadID, s.threads)
	s.handles[cfg.ChannelID] = t
	return t
}

// Reset replaces the channel's thread with a new, empty one. The webhook and
// the active personas are kept. Runs in flight on the channel are aborted
// before the new thread is installed.
func (s *Store) Reset(ctx context.Context, channelID string) (*Thread, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	cfg, err := s.channels.Get(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading channel %s: %w", channelID, err)
	}

	s.cancelMu.RLock()
	canceller := s.canceller
	s.cancelMu.RUnlock()
	if canceller != nil {
		if n := canceller.CancelChannel(channelID); n > 0 {
			s.logger.Info("aborted in-flight runs", "channel_id", channelID, "runs", n)
		}
	}

	threadID, err := s.threads.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating thread for channel %s: %w", channelID, err)
	}

	previous := cfg.ThreadID
	cfg.ThreadID = threadID
	if err := s.channels.Put(ctx, cfg); err != nil {
		return nil, fmt.Errorf("saving channel %s: %w", channelID, err)
	}

	s.logger.Info("channel reset", "channel_id", channelID, "previous_thread_id", previous, "thread_id", threadID)
	return s.handle(cfg), nil
}

// SetActivePersonas replaces the personas active in channelID.
func (s *Store) SetActivePersonas(ctx context.Context, channelID string, ids []string) (store.ChannelConfiguration, error) {
	unlock := s.locks.Lock(channelID)
	defer unlock()

	cfg, err := s.channels.Get(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return cfg, fmt.Errorf("%w: %s", ErrChannelNotConfigured, channelID)
	}
	if err != nil {
		return cfg, fmt.Errorf("loading channel %s: %w", channelID, err)
	}

	cfg.ActivePersonaIDs = dedupe(ids)
	if err := s.channels.Put(ctx, cfg); err != nil {
		return cfg, fmt.Errorf("saving channel %s: %w", channelID, err)
	}
	return cfg, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
