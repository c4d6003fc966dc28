package report

import (
	"strings"
	"time"

	"inspector-report/internal/model"
)

// Stats summarises the whole request, before any rendering cap applies.
type Stats struct {
	TotalEvents  int
	UniqueNames  int
	WarningCount int
	TimeRange    string
}

// Aggregate computes Stats over every event. Events with an unparseable
// timestamp still count towards the totals but not towards the range.
func Aggregate(events []model.EventRecord, loc *time.Location) Stats {
	st := Stats{TotalEvents: len(events)}

	names := make(map[string]struct{})
	var earliest, latest time.Time
	parsed := 0

	for i := range events {
		ev := &events[i]

		if n := strings.ToLower(strings.TrimSpace(Clean(ev.EventName, "", 256))); n != "" {
			names[n] = struct{}{}
		}
		st.WarningCount += len(Warnings(ev))

		t, ok := ParseTimestamp(ev.Timestamp, loc)
		if !ok {
			continue
		}
		if parsed == 0 || t.Before(earliest) {
			earliest = t
		}
		if parsed == 0 || t.After(latest) {
			latest = t
		}
		parsed++
	}

	st.UniqueNames = len(names)
	if parsed == 0 {
		st.TimeRange = Fallback
	} else {
		st.TimeRange = formatTime(earliest, loc) + " to " + formatTime(latest, loc)
	}
	return st
}
