package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func activeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show currently active sessions with their latest position",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			frame, err := roundTrip(
				map[string]any{"type": "get_active_users"},
				"active_users",
			)
			if err != nil {
				return fmt.Errorf("request active users: %w", err)
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
