package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

type healthReport struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks"`
	Duration string            `json:"duration"`
}

// newHealthCmd creates the `cognicompany health` command. Used by container
// health checks; exits non-zero when a check fails.
func newHealthCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check configuration, secrets and database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			report := healthReport{Status: "ok", Version: version, Checks: map[string]string{}}
			fail := func(check string, err error) {
				report.Status = "error"
				report.Checks[check] = err.Error()
			}

			cfg, err := resolveConfig(cmd, bootLogger(cmd))
			if err != nil {
				fail("config", err)
			} else {
				report.Checks["config"] = "ok"

				for name, v := range map[string]string{"discord_token": cfg.Discord.Token, "openai_api_key": cfg.OpenAI.APIKey} {
					if v == "" {
						fail(name, fmt.Errorf("missing"))
					} else {
						report.Checks[name] = "ok"
					}
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				if db, err := store.Open(cfg.Database.Path); err != nil {
					fail("database", err)
				} else {
					if err := db.Ping(ctx); err != nil {
						fail("database", err)
					} else {
						report.Checks["database"] = "ok"
					}
					db.Close()
				}
			}

			report.Duration = time.Since(start).Round(time.Millisecond).String()
			enc := json.NewEncoder(os.Stdout)
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Status != "ok" {
				return fmt.Errorf("unhealthy")
			}
			return nil
		},
	}
}
