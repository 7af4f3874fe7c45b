package usecase

import (
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// parseTimestamp returns nil for empty or malformed values.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// durationSeconds converts an ISO-8601 duration such as "PT1H30M" to whole
// seconds. Running timers carry no duration and yield nil.
func durationSeconds(s string) *int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return nil
	}
	secs := int64(d.ToTimeDuration() / time.Second)
	return &secs
}
