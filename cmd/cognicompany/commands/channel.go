package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newChannelCmd creates the `cognicompany channel` command.
func newChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Inspect and reset channel conversations",
	}
	cmd.AddCommand(newChannelListCmd(), newChannelResetCmd(), newChannelPersonasCmd())
	return cmd
}

func newChannelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			list, err := rt.assistant.Channels(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range list {
				personas := "-"
				if len(c.ActivePersonaIDs) > 0 {
					personas = strings.Join(c.ActivePersonaIDs, ",")
				}
				fmt.Printf("%s\tthread=%s\tpersonas=%s\n", c.ChannelID, c.ThreadID, personas)
			}
			return nil
		},
	}
}

func newChannelResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <channel-id>",
		Short: "Start a new conversation thread in a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.assistant.ResetChannel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Channel %s reset.\n", args[0])
			return nil
		},
	}
}

func newChannelPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas <channel-id> [assistant-id...]",
		Short: "Set the personas active in a channel (none clears them)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			// Offline: without a gateway, only already bootstrapped channels can be changed.
			cfg, err := rt.assistant.SetChannelPersonas(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("Channel %s personas: %s\n", cfg.ChannelID, strings.Join(cfg.ActivePersonaIDs, ", "))
			return nil
		},
	}
}
