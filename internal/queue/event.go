// Package queue drains the activity queue that the AMQP notification sink
// publishes to.
package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/pixvault/internal/notify"
)

// FormatActivity renders ev as one human-friendly log line, terminated by a
// newline. Metadata keys are sorted so lines are stable.
func FormatActivity(ev notify.Event) string {
	var b strings.Builder
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	fmt.Fprintf(&b, "[%s] %s | category=%s", ts.UTC().Format(time.RFC3339), ev.Type, ev.Category)
	if ev.UserID != "" {
		fmt.Fprintf(&b, " | user_id=%s", ev.UserID)
	}
	if ev.ClientAddr != "" {
		fmt.Fprintf(&b, " | addr=%s", ev.ClientAddr)
	}
	if ev.Resource != "" {
		fmt.Fprintf(&b, " | resource=%q", ev.Resource)
	}
	if len(ev.Metadata) > 0 {
		keys := make([]string, 0, len(ev.Metadata))
		for k := range ev.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " | %s=%v", k, ev.Metadata[k])
		}
	}
	b.WriteByte('\n')
	return b.String()
}
