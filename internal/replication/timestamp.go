package replication

import (
	"strings"
	"time"
)

// Layouts accepted from the wire, most specific first. Values without an
// offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is the result of parsing a wire timestamp. Fallback is set when
// the raw value was absent or unreadable and Time holds the processing time
// instead.
type Timestamp struct {
	Time     time.Time
	Fallback bool
	Raw      string
}

// ParseTimestamp reads an ISO-8601 timestamp, optionally suffixed with Z. It
// never fails: a missing or malformed value yields now with Fallback set.
func ParseTimestamp(raw string, now time.Time) Timestamp {
	s := strings.TrimSpace(raw)
	if s != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Timestamp{Time: t.UTC(), Raw: raw}
			}
		}
	}
	return Timestamp{Time: now.UTC(), Fallback: true, Raw: raw}
}

// FormatTimestamp writes t as RFC 3339 in UTC. The zero time formats as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
