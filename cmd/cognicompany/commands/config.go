package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

// newConfigCmd creates the `cognicompany config` command.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage relay configuration",
		Long: `Manage cognicompany configuration.

Examples:
  cognicompany config init
  cognicompany config show
  cognicompany config validate
  cognicompany config set-key openai_api_key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigSetKeyCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			target := "config.yaml"

			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("config.yaml already exists. Remove it first or edit it directly")
			}

			cfg := config.DefaultConfig()
			cfg.Discord.Token = "${DISCORD_TOKEN}"
			cfg.OpenAI.APIKey = "${OPENAI_API_KEY}"
			if err := config.SaveConfigToFile(cfg, target); err != nil {
				return err
			}

			fmt.Printf("Created %s with default configuration.\n", target)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Store your secrets: cognicompany config set-key discord_token")
			fmt.Println("                         cognicompany config set-key openai_api_key")
			fmt.Println("  2. Set default_persona to your assistant id")
			fmt.Println("  3. Run: cognicompany serve")
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("# Loaded from: %s\n\n", path)

			data, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", path, err)
			}

			fmt.Printf("Config: %s\n", path)
			fmt.Printf("  Name:            %s\n", cfg.Name)
			fmt.Printf("  Trigger:         %s\n", cfg.Trigger)
			fmt.Printf("  Default persona: %s\n", cfg.DefaultPersona)
			fmt.Printf("  Database:        %s\n", cfg.Database.Path)
			fmt.Printf("  Poll interval:   %s\n", cfg.Runner.PollInterval)
			if cfg.Runner.MaxWait > 0 {
				fmt.Printf("  Max wait:        %s\n", cfg.Runner.MaxWait)
			} else {
				fmt.Printf("  Max wait:        unbounded\n")
			}
			fmt.Printf("  Storage:         %v\n", cfg.Storage.Enabled())
			fmt.Printf("  Personas:        %d\n", len(cfg.Personas))
			for _, p := range cfg.Personas {
				fmt.Printf("    - %s (%s)\n", p.ID, p.Name)
			}

			fmt.Println("\nConfiguration is valid.")
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-key <discord_token|openai_api_key|storage_secret_key> [value]",
		Short:     "Store a secret in the OS keyring",
		Long:      "Store a secret in the OS keyring. Without a value it is read from the terminal without echo.",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{config.KeyDiscordToken, config.KeyOpenAIAPIKey, config.KeyStorageSecret},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.KnownKey(key) {
				return fmt.Errorf("unknown key %q", key)
			}
			if !config.KeyringAvailable() {
				return fmt.Errorf("OS keyring not available; use environment variables or a .env file instead")
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fmt.Errorf("no value given and stdin is not a terminal")
				}
				fmt.Printf("%s: ", key)
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("reading secret: %w", err)
				}
				value = strings.TrimSpace(string(raw))
			}
			if value == "" {
				return fmt.Errorf("empty value")
			}

			return config.MigrateKeyToKeyring(key, value, bootLogger(cmd))
		},
	}
}

// loadConfig loads the config from the --config flag or auto-discovers it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	if configPath == "" {
		return nil, "", fmt.Errorf("no config file found.\nRun 'cognicompany config init' to create one, or use --config <path>")
	}

	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	return cfg, configPath, nil
}

// redacted returns a copy of cfg with literal secrets masked. ${VAR}
// references are shown as written.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	for _, s := range []*string{&c.Discord.Token, &c.OpenAI.APIKey, &c.Storage.SecretKey} {
		if *s != "" && !strings.HasPrefix(*s, "${") {
			*s = "********"
		}
	}
	return &c
}
