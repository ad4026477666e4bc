package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not
// supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatFrame renders a whole response frame in the requested format,
// using the table renderer for known shapes.
func formatFrame(frame map[string]any, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatAsJSON(frame)
	case formatTable:
		return formatFrameTable(frame)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatAsJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data), nil
}

func formatFrameTable(frame map[string]any) (string, error) {
	switch frame["type"] {
	case "session_list":
		return formatSessionsTable(frame)
	case "active_users":
		return formatActiveUsersTable(frame)
	default:
		// Responses without tabular content (cleanup, delete) print their
		// key facts one per line.
		return formatKeyValues(frame), nil
	}
}

func formatSessionsTable(frame map[string]any) (string, error) {
	sessions, _ := frame["sessions"].([]any)

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tACTIVE")

	for _, entry := range sessions {
		s, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		active, _ := s["isActive"].(bool)
		fmt.Fprintf(w, "%s\t%v\n", stringOr(s["sessionId"], valueNA), active)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush table: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func formatActiveUsersTable(frame map[string]any) (string, error) {
	users, _ := frame["users"].([]any)

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPERSON\tEVENT\tLAST-UPDATE\tLATITUDE\tLONGITUDE")

	for _, entry := range users {
		u, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%v\n",
			stringOr(u["sessionId"], valueNA),
			stringOr(u["person"], valueNA),
			stringOr(u["eventName"], valueNA),
			stringOr(u["lastUpdate"], valueNA),
			u["latitude"],
			u["longitude"],
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush table: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// formatKeyValues prints the frame's scalar fields sorted by key, the
// type first.
func formatKeyValues(frame map[string]any) string {
	keys := make([]string, 0, len(frame))
	for k := range frame {
		if k == "type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	fmt.Fprintf(&buf, "type: %v", frame["type"])
	for _, k := range keys {
		fmt.Fprintf(&buf, "\n%s: %v", k, frame[k])
	}
	return buf.String()
}

// formatUpdateLine renders one streamed tracking update as a single line.
// Update frames nest the point under "point".
func formatUpdateLine(frame map[string]any) string {
	point, _ := frame["point"].(map[string]any)
	if point == nil {
		point = frame
	}
	return fmt.Sprintf("%-22s %-22s %-20s lat=%v lon=%v dist=%v speed=%v",
		stringOr(point["timestamp"], valueNA),
		stringOr(frame["type"], valueNA),
		stringOr(point["sessionId"], valueNA),
		point["latitude"],
		point["longitude"],
		point["distance"],
		point["currentSpeed"],
	)
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
