package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Fallback is rendered wherever a value is missing or malformed.
const Fallback = "n/a"

const defaultMaxLength = 2000

// displayLayout renders "Jan 5, 2024, 3:04:05 PM".
const displayLayout = "Jan 2, 2006, 3:04:05 PM"

// timestampLayouts are tried in order. Layouts without a zone are read in
// the report location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Clean
//
// Coerces value to display text:
//   - nil, "" or a value that is empty after cleaning → fallback
//   - ASCII control characters except \t \n \r are removed
//   - the result is cut to maxLength runes, without an ellipsis
//
// Clean never fails and is idempotent on its own output.
func Clean(value any, fallback string, maxLength int) string {
	s := toText(value)
	if s == "" {
		return fallback
	}
	s = stripControls(s)
	if s == "" {
		return fallback
	}
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	return cutRunes(s, maxLength)
}

// Truncate cleans value with the defaults and shortens it to maxLength
// runes, ending in "..." when it had to cut. The fallback passes through.
func Truncate(value any, maxLength int) string {
	s := Clean(value, Fallback, defaultMaxLength)
	if s == Fallback {
		return s
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	if maxLength < 3 {
		return cutRunes(s, maxLength)
	}
	return cutRunes(s, maxLength-3) + "..."
}

// ParseTimestamp reads an ISO-8601-like string. Anything that is not a
// string, or does not parse, reports false.
func ParseTimestamp(value any, loc *time.Location) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders value as a medium date+time in loc, or the
// fallback when it cannot be parsed.
func FormatTimestamp(value any, loc *time.Location) string {
	if t, ok := value.(time.Time); ok {
		return formatTime(t, loc)
	}
	t, ok := ParseTimestamp(value, loc)
	if !ok {
		return Fallback
	}
	return formatTime(t, loc)
}

func formatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(displayLayout)
}

func toText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func isStrippedControl(r rune) bool {
	switch {
	case r <= 0x08, r == 0x0B, r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F, r == 0x7F:
		return true
	}
	return false
}

func stripControls(s string) string {
	if strings.IndexFunc(s, isStrippedControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
}

func cutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
