package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/discord"
)

// newServeCmd creates the `cognicompany serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay daemon",
		Long: `Connect to Discord and relay channel conversations to the assistants.

Examples:
  cognicompany serve
  cognicompany serve --config ./config.yaml --verbose`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Build the assistant ──
	rt, err := openRuntime(cmd, func(cfg *config.Config, logger *slog.Logger) (channels.Gateway, error) {
		if cfg.Discord.Token == "" {
			return nil, fmt.Errorf("no Discord token; run 'cognicompany config set-key %s'", config.KeyDiscordToken)
		}
		return discord.New(cfg.Discord, logger)
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// ── Start ──
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.assistant.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	// ── Wait for shutdown ──
	rt.logger.Info("cognicompany running. Press Ctrl+C to stop.",
		"name", rt.cfg.Name,
		"trigger", rt.cfg.Trigger,
		"default_persona", rt.cfg.DefaultPersona,
	)
	<-ctx.Done()

	rt.logger.Info("shutdown signal received, stopping...")
	rt.assistant.Stop()
	return nil
}
