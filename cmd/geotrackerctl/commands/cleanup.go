package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Trigger an immediate in-memory retention sweep",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			frame, err := roundTrip(
				map[string]any{"type": "cleanup_memory"},
				"cleanup_response",
			)
			if err != nil {
				return fmt.Errorf("request cleanup: %w", err)
			}

			out, err := formatFrame(frame, outputFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}
