package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/copilot"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/storage"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

// resolveConfig loads config from file or uses defaults, then resolves
// secrets and validates.
func resolveConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	var cfg *config.Config
	switch {
	case configPath != "":
		c, err := config.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = c

	default:
		if found := config.FindConfigFile(); found != "" {
			c, err := config.LoadConfigFromFile(found)
			if err != nil {
				return nil, fmt.Errorf("loading config from %s: %w", found, err)
			}
			logger.Info("config loaded", "path", found)
			cfg = c
		} else {
			config.LoadDotEnv(".env")
			logger.Info("no config file found, using defaults")
			cfg = config.DefaultConfig()
		}
	}

	config.ResolveSecrets(cfg, logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger selected by the config and --verbose.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || (cfg != nil && cfg.Logging.Level == "debug") {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// bootLogger is used until the config has been read.
func bootLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runtime bundles what a command needs to talk to the assistant service.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *store.DB
	assistant *copilot.Assistant
}

func (r *runtime) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// openRuntime loads the config and builds an Assistant. gateway may be nil
// for administrative commands that do not connect to the chat platform.
func openRuntime(cmd *cobra.Command, gateway func(*config.Config, *slog.Logger) (channels.Gateway, error)) (*runtime, error) {
	cfg, err := resolveConfig(cmd, bootLogger(cmd))
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)

	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("no OpenAI API key; run 'cognicompany config set-key %s'", config.KeyOpenAIAPIKey)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, db: db}

	client := llm.NewOpenAIClient(cfg.OpenAI, logger)
	deps := copilot.Deps{
		Threads:    client,
		Assistants: client,
		Media:      client,
		DB:         db,
	}

	if cfg.Storage.Enabled() {
		up, err := storage.New(cfg.Storage, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Uploader = up
	} else {
		logger.Info("object storage not configured, image and speech tools disabled")
	}

	if gateway != nil {
		gw, err := gateway(cfg, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Gateway = gw
	}

	rt.assistant, err = copilot.New(cfg, deps, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}
