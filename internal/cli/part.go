package cli

import (
	"fmt"

	"github.com/neoclaw-ai/completions/internal/config"
	"github.com/neoclaw-ai/completions/internal/conversation"
	"github.com/spf13/cobra"
)

func newPartCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "part <id>",
		Short: "Print the saved completion of a conversation part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			parts, err := conversation.New(cfg.ConversationsDir()).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(parts) == 0 {
				return fmt.Errorf("conversation part %q has no saved completion", args[0])
			}
			if !all {
				parts = parts[len(parts)-1:]
			}
			for _, part := range parts {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), part.Content); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Print every saved completion, oldest first")
	return cmd
}
