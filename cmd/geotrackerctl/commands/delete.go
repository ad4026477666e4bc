package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errDeleteRefused is returned when the daemon declines a deletion.
var errDeleteRefused = errors.New("delete refused")

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sessionId>",
		Short: "Delete a finished session from memory and the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			frame, err := roundTrip(
				map[string]any{"type": "delete_session", "sessionId": args[0]},
				"delete_response",
			)
			if err != nil {
				return fmt.Errorf("request delete: %w", err)
			}

			if success, _ := frame["success"].(bool); !success {
				reason, _ := frame["reason"].(string)
				return fmt.Errorf("%w: %s", errDeleteRefused, reason)
			}

			fmt.Printf("session %s deleted\n", args[0])
			return nil
		},
	}
}
