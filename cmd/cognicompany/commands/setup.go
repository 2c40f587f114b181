package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

// newSetupCmd creates the `cognicompany setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the trigger word, default assistant, secrets and object storage.

Examples:
  cognicompany setup`,
		RunE: runSetup,
	}
}

// setupAnswers holds the wizard's form values.
type setupAnswers struct {
	name           string
	trigger        string
	defaultPersona string
	discordToken   string
	openAIKey      string
	useKeyring     bool
	storageURL     string
	storageKey     string
	storageSecret  string
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("setup needs an interactive terminal; use 'cognicompany config init' instead")
	}

	target := "config.yaml"
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s already exists. Remove it first or edit it directly", target)
	}

	cfg := config.DefaultConfig()
	ans := setupAnswers{
		name:           cfg.Name,
		trigger:        cfg.Trigger,
		defaultPersona: cfg.DefaultPersona,
		useKeyring:     config.KeyringAvailable(),
	}

	// ── Step 1: Identity, secrets and object storage ──
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Assistant name").Value(&ans.name),
			huh.NewInput().Title("Trigger keyword").
				Description("Wakes the default assistant in channels without active personas").
				Value(&ans.trigger).
				Validate(notEmpty("trigger")),
			huh.NewInput().Title("Default assistant id").Value(&ans.defaultPersona).
				Validate(notEmpty("assistant id")),
		),
		huh.NewGroup(
			huh.NewInput().Title("Discord bot token").EchoMode(huh.EchoModePassword).Value(&ans.discordToken),
			huh.NewInput().Title("OpenAI API key").EchoMode(huh.EchoModePassword).Value(&ans.openAIKey),
			huh.NewConfirm().Title("Store secrets in the OS keyring?").
				Description("Otherwise they are written to .env").
				Value(&ans.useKeyring),
		),
		huh.NewGroup(
			huh.NewInput().Title("S3 endpoint URL (empty to skip)").
				Placeholder("https://minio.example.com").
				Value(&ans.storageURL),
			huh.NewInput().Title("S3 access key").Value(&ans.storageKey),
			huh.NewInput().Title("S3 secret key").EchoMode(huh.EchoModePassword).Value(&ans.storageSecret),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup aborted: %w", err)
	}

	cfg.Name = strings.TrimSpace(ans.name)
	cfg.Trigger = strings.ToLower(strings.TrimSpace(ans.trigger))
	cfg.DefaultPersona = strings.TrimSpace(ans.defaultPersona)
	cfg.Discord.Token = "${DISCORD_TOKEN}"
	cfg.OpenAI.APIKey = "${OPENAI_API_KEY}"
	if u := strings.TrimSpace(ans.storageURL); u != "" {
		cfg.Storage.URL = u
		cfg.Storage.AccessKey = strings.TrimSpace(ans.storageKey)
		cfg.Storage.SecretKey = "${S3_SECRET}"
	}

	// ── Step 2: Persist secrets ──
	logger := bootLogger(cmd)
	envLines := map[string]string{}
	secrets := []struct{ key, env, value string }{
		{config.KeyDiscordToken, "DISCORD_TOKEN", ans.discordToken},
		{config.KeyOpenAIAPIKey, "OPENAI_API_KEY", ans.openAIKey},
		{config.KeyStorageSecret, "S3_SECRET", ans.storageSecret},
	}
	for _, s := range secrets {
		v := strings.TrimSpace(s.value)
		if v == "" {
			continue
		}
		if ans.useKeyring {
			if err := config.MigrateKeyToKeyring(s.key, v, logger); err == nil {
				fmt.Printf("  %s stored in OS keyring.\n", s.key)
				continue
			}
			fmt.Printf("  [!] Keyring failed for %s, writing to .env\n", s.key)
		}
		envLines[s.env] = v
	}
	if len(envLines) > 0 {
		if err := writeDotEnv(".env", envLines); err != nil {
			return err
		}
		fmt.Println("  Secrets written to .env (keep it out of version control).")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfigToFile(cfg, target); err != nil {
		return err
	}

	fmt.Printf("\nCreated %s.\n", target)
	fmt.Println("Next: cognicompany assistants sync-tools && cognicompany serve")
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// writeDotEnv appends vars to path, creating it with owner-only permissions.
func writeDotEnv(path string, vars map[string]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	for _, k := range []string{"DISCORD_TOKEN", "OPENAI_API_KEY", "S3_SECRET"} {
		v, ok := vars[k]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(f, "%s=%q\n", k, v); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
