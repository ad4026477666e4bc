// Package commands implements the geotrackerctl CLI commands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// errNoResponse is returned when the daemon closes the connection before
// answering a request.
var errNoResponse = errors.New("connection closed before a response arrived")

// wsClient is a thin request/response layer over the tracking WebSocket.
// The endpoint also pushes unsolicited broadcasts (updates, active user
// snapshots), so awaiting a response means skipping frames until one of
// the expected types shows up.
type wsClient struct {
	conn *websocket.Conn
}

func dialServer(ctx context.Context) (*wsClient, error) {
	u := url.URL{Scheme: "ws", Host: serverAddr, Path: serverPath}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &wsClient{conn: conn}, nil
}

func (c *wsClient) close() {
	deadline := time.Now().Add(time.Second)
	c.conn.SetWriteDeadline(deadline)
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

// send writes one JSON request frame.
func (c *wsClient) send(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

// await reads frames until one of the wanted types arrives, skipping
// broadcast traffic addressed to everyone.
func (c *wsClient) await(wantTypes ...string) (map[string]any, error) {
	wanted := make(map[string]struct{}, len(wantTypes))
	for _, t := range wantTypes {
		wanted[t] = struct{}{}
	}

	deadline := time.Now().Add(requestTimeout)
	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			// Bare heartbeat replies and other non-JSON traffic.
			continue
		}
		ty, _ := frame["type"].(string)
		if _, ok := wanted[ty]; ok {
			return frame, nil
		}
	}

	return nil, errNoResponse
}

// roundTrip dials, sends one request, and awaits the response.
func roundTrip(request any, wantTypes ...string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client, err := dialServer(ctx)
	if err != nil {
		return nil, err
	}
	defer client.close()

	if err := client.send(request); err != nil {
		return nil, err
	}
	return client.await(wantTypes...)
}
