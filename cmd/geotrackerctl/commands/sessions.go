package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions held by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			frame, err := roundTrip(
				map[string]any{"type": "request_sessions"},
				"session_list",
			)
			if err != nil {
				return fmt.Errorf("request sessions: %w", err)
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
