package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// monitorReadTimeout is the per-read deadline while streaming; it only
// bounds how quickly Ctrl+C takes effect, not the stream itself.
const monitorReadTimeout = time.Second

func monitorCmd() *cobra.Command {
	var withFollowed bool

	cmd := &cobra.Command{
		Use:   "monitor [sessionId...]",
		Short: "Stream live tracking updates",
		Long: "Connects to the daemon and prints tracking updates until interrupted (Ctrl+C).\n" +
			"With session ids, follows those sessions and streams their reduced updates.",
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := dialServer(ctx)
			if err != nil {
				return err
			}
			defer client.close()

			if len(args) > 0 {
				follow := map[string]any{"type": "follow_users", "sessionIds": args}
				if err := client.send(follow); err != nil {
					return err
				}
				withFollowed = true
			}

			return streamUpdates(ctx, client, withFollowed)
		},
	}

	cmd.Flags().BoolVar(&withFollowed, "followed", false,
		"also print followed_user_update frames")

	return cmd
}

// streamUpdates prints update traffic until the context is cancelled.
func streamUpdates(ctx context.Context, client *wsClient, withFollowed bool) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		client.conn.SetReadDeadline(time.Now().Add(monitorReadTimeout))
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}

		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame["type"] {
		case "update":
			fmt.Println(formatUpdateLine(frame))
		case "followed_user_update":
			if withFollowed {
				fmt.Println(formatUpdateLine(frame))
			}
		case "invalid_coordinates":
			fmt.Printf("%-22s invalid_coordinates    %-20s reason=%v\n",
				valueNA, stringOr(frame["sessionId"], valueNA), frame["reason"])
		case "session_deleted":
			fmt.Printf("session deleted: %v\n", frame["sessionId"])
		}
	}
}
