package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChannelConfiguration binds a chat channel to its remote thread, its relay
// webhook and the personas active in it.
type ChannelConfiguration struct {
	ChannelID        string   `json:"channel_id"`
	ThreadID         string   `json:"thread_id"`
	WebhookURL       string   `json:"webhook_url"`
	ActivePersonaIDs []string `json:"active_persona_ids"`
}

// ChannelStore persists ChannelConfiguration records keyed by channel id.
type ChannelStore struct {
	bucket *Bucket
}

// NewChannelStore returns the channel store backed by db.
func NewChannelStore(db *DB) *ChannelStore {
	return &ChannelStore{bucket: db.Bucket("channels")}
}

// Get returns the configuration of channelID or ErrNotFound.
func (s *ChannelStore) Get(ctx context.Context, channelID string) (ChannelConfiguration, error) {
	var cfg ChannelConfiguration
	raw, err := s.bucket.Get(ctx, channelID)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding channel %s: %w", channelID, err)
	}
	if cfg.ActivePersonaIDs == nil {
		cfg.ActivePersonaIDs = []string{}
	}
	return cfg, nil
}

// Put stores cfg under its channel id.
func (s *ChannelStore) Put(ctx context.Context, cfg ChannelConfiguration) error {
	if cfg.ChannelID == "" {
		return fmt.Errorf("channel configuration without channel id")
	}
	if cfg.ActivePersonaIDs == nil {
		cfg.ActivePersonaIDs = []string{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding channel %s: %w", cfg.ChannelID, err)
	}
	return s.bucket.Put(ctx, cfg.ChannelID, raw)
}

// List returns every channel configuration.
func (s *ChannelStore) List(ctx context.Context) ([]ChannelConfiguration, error) {
	var out []ChannelConfiguration
	err := s.bucket.ForEach(ctx, func(key string, val []byte) error {
		var cfg ChannelConfiguration
		if err := json.Unmarshal(val, &cfg); err != nil {
			return fmt.Errorf("decoding channel %s: %w", key, err)
		}
		out = append(out, cfg)
		return nil
	})
	return out, err
}
