// Package commands implements the cognicompany CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command and registers every subcommand.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "cognicompany",
		Short: "Relay Discord conversations to hosted assistants",
		Long: `cognicompany connects Discord channels to OpenAI assistants.
Each channel shares one conversation thread; personas answer when named,
and the default assistant answers to its trigger word.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newSetupCmd(),
		newChannelCmd(),
		newAssistantsCmd(),
		newCompletionCmd(),
		newHealthCmd(version),
	)
	return root
}
