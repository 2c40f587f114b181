package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newAssistantsCmd creates the `cognicompany assistants` command.
func newAssistantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assistants",
		Aliases: []string{"personas"},
		Short:   "Manage the assistant personas",
	}
	cmd.AddCommand(newAssistantsListCmd(), newAssistantsSyncToolsCmd(), newAssistantsSetImageCmd())
	return cmd
}

func newAssistantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List personas and how they present themselves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.assistant.Personas().Refresh(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVOICE\tAVATAR")
			for _, p := range rt.assistant.Personas().All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, dash(p.Voice), dash(p.AvatarURL))
			}
			return w.Flush()
		},
	}
}

func newAssistantsSyncToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-tools [assistant-id...]",
		Short: "Advertise the available tools to assistants (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.assistant.SyncPersonaTools(cmd.Context(), args...)
			if err != nil {
				return err
			}

			defs := rt.assistant.Tools().Definitions()
			fmt.Printf("Updated %d assistant(s) with %d tool(s):\n", n, len(defs))
			for _, d := range defs {
				fmt.Printf("  - %s\n", d.Name)
			}
			return nil
		},
	}
}

func newAssistantsSetImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-image <assistant-id> <image-url>",
		Short: "Set the avatar an assistant posts with",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.assistant.SetPersonaImage(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Avatar of %s set.\n", args[0])
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
