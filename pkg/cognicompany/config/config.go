// Package config defines the cognicompany configuration, its defaults and
// validation. Loading lives in loader.go, secret resolution in keyring.go.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration of the relay daemon.
type Config struct {
	// Name identifies this installation in logs and in the default webhook name.
	Name string `yaml:"name"`

	// Trigger is the keyword that wakes the default persona when a channel
	// has no active personas.
	Trigger string `yaml:"trigger"`

	// DefaultPersona is the assistant id answering triggered messages.
	DefaultPersona string `yaml:"default_persona"`

	Logging  LoggingConfig   `yaml:"logging"`
	Discord  DiscordConfig   `yaml:"discord"`
	OpenAI   OpenAIConfig    `yaml:"openai"`
	Storage  StorageConfig   `yaml:"storage"`
	Database DatabaseConfig  `yaml:"database"`
	Media    MediaConfig     `yaml:"media"`
	Runner   RunnerConfig    `yaml:"runner"`
	Relay    RelayConfig     `yaml:"relay"`
	Janitor  JanitorConfig   `yaml:"janitor"`
	Tools    ToolsConfig     `yaml:"tools"`
	Personas []PersonaConfig `yaml:"personas,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug" or "info"
	Format string `yaml:"format"` // "json" or "text"
}

// DiscordConfig configures the chat gateway.
type DiscordConfig struct {
	Token string `yaml:"token"`

	// WebhookName is the name given to the per-channel webhook used to post
	// under persona identities.
	WebhookName string `yaml:"webhook_name"`

	// GuildID scopes slash commands to a single guild. Empty registers them globally.
	GuildID string `yaml:"guild_id"`

	// RecreateCommands deletes every registered slash command at startup
	// before registering the current set.
	RecreateCommands bool `yaml:"recreate_commands"`
}

// OpenAIConfig configures the assistant service client.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig configures the S3-compatible object store for generated media.
type StorageConfig struct {
	URL         string `yaml:"url"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Region      string `yaml:"region"`
	ImageBucket string `yaml:"image_bucket"`
	AudioBucket string `yaml:"audio_bucket"`

	// PublicURL is the base of returned object links. Defaults to URL.
	PublicURL string `yaml:"public_url"`
}

// Enabled reports whether an object store is configured.
func (s StorageConfig) Enabled() bool {
	return s.URL != ""
}

// DatabaseConfig points at the SQLite file backing the KV stores.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MediaConfig controls generated and downloaded media.
type MediaConfig struct {
	ImageDir    string `yaml:"image_dir"`
	VoiceDir    string `yaml:"voice_dir"`
	DownloadDir string `yaml:"download_dir"`

	// YTDLP is the yt-dlp binary used to fetch audio for transcription.
	YTDLP string `yaml:"yt_dlp"`

	ImageModel         string `yaml:"image_model"`
	SpeechModel        string `yaml:"speech_model"`
	DefaultVoice       string `yaml:"default_voice"`
	TranscriptionModel string `yaml:"transcription_model"`
}

// RunnerConfig tunes the run polling loop.
type RunnerConfig struct {
	// PollInterval is the sleep between status checks while a run is queued
	// or in progress.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxWait bounds a whole run. Zero waits until the run reaches a terminal state.
	MaxWait time.Duration `yaml:"max_wait"`

	// PollRetries is how many times a failed status check is retried.
	PollRetries int `yaml:"poll_retries"`

	PollRetryBaseDelay time.Duration `yaml:"poll_retry_base_delay"`
	PollRetryMaxDelay  time.Duration `yaml:"poll_retry_max_delay"`
}

// RelayConfig controls outbound message shaping.
type RelayConfig struct {
	// ChunkBudget is the maximum size of a single outbound chat message.
	ChunkBudget int `yaml:"chunk_budget"`
}

// ToolsConfig restricts the tools personas can call.
type ToolsConfig struct {
	// ScrapeAllowedHosts limits web_scrape to these hosts ("*.example.com"
	// wildcards allowed). Empty allows every host.
	ScrapeAllowedHosts []string `yaml:"scrape_allowed_hosts,omitempty"`

	// ScrapeBlockPrivate rejects hosts resolving to non-public addresses.
	ScrapeBlockPrivate bool `yaml:"scrape_block_private"`
}

// JanitorConfig schedules background maintenance jobs (cron syntax).
type JanitorConfig struct {
	MediaSweep     string        `yaml:"media_sweep"`
	MediaMaxAge    time.Duration `yaml:"media_max_age"`
	PersonaRefresh string        `yaml:"persona_refresh"`
}

// PersonaConfig statically declares a persona. Fields left empty are
// filled from the assistant's metadata on refresh.
type PersonaConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Voice    string `yaml:"voice"`
	Avatar   string `yaml:"avatar"`
	Webhook  string `yaml:"webhook"`
	AuthorID string `yaml:"author_id"`
}

// MaxChunkBudget is the largest message the chat platform accepts.
const MaxChunkBudget = 2000

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Name:           "Lovelace",
		Trigger:        "lovelace",
		DefaultPersona: "asst_P66RVsW92Izpwky1qWDAZMO8",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Discord: DiscordConfig{
			WebhookName: "cognicompany",
		},
		Storage: StorageConfig{
			ImageBucket: "images",
			AudioBucket: "audio",
		},
		Database: DatabaseConfig{
			Path: "./data/cognicompany.db",
		},
		Media: MediaConfig{
			ImageDir:           "./data/images",
			VoiceDir:           "./data/voice",
			DownloadDir:        "./data/downloads",
			YTDLP:              "yt-dlp",
			ImageModel:         "dall-e-3",
			SpeechModel:        "tts-1",
			DefaultVoice:       "nova",
			TranscriptionModel: "whisper-1",
		},
		Runner: RunnerConfig{
			PollInterval:       time.Second,
			PollRetries:        3,
			PollRetryBaseDelay: 500 * time.Millisecond,
			PollRetryMaxDelay:  5 * time.Second,
		},
		Relay: RelayConfig{
			ChunkBudget: MaxChunkBudget,
		},
		Janitor: JanitorConfig{
			MediaSweep:     "@every 1h",
			MediaMaxAge:    24 * time.Hour,
			PersonaRefresh: "@every 10m",
		},
		Tools: ToolsConfig{
			ScrapeBlockPrivate: true,
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
// Secrets are not checked here; they may still come from the keyring or env.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Trigger) == "" {
		errs = append(errs, errors.New("trigger must not be empty"))
	}
	if c.DefaultPersona == "" {
		errs = append(errs, errors.New("default_persona must be set"))
	}
	if c.Runner.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("runner.poll_interval must be positive, got %s", c.Runner.PollInterval))
	}
	if c.Runner.MaxWait < 0 {
		errs = append(errs, fmt.Errorf("runner.max_wait must not be negative, got %s", c.Runner.MaxWait))
	}
	if c.Runner.PollRetries < 0 {
		errs = append(errs, fmt.Errorf("runner.poll_retries must not be negative, got %d", c.Runner.PollRetries))
	}
	if c.Relay.ChunkBudget <= 0 || c.Relay.ChunkBudget > MaxChunkBudget {
		errs = append(errs, fmt.Errorf("relay.chunk_budget must be in 1..%d, got %d", MaxChunkBudget, c.Relay.ChunkBudget))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}

	seen := make(map[string]bool, len(c.Personas))
	for i, p := range c.Personas {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("personas[%d]: id must be set", i))
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("personas[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}

	return errors.Join(errs...)
}
