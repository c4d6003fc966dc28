package report

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestClean(t *testing.T) {
	cases := []struct {
		name     string
		in       any
		fallback string
		max      int
		want     string
	}{
		{"nil", nil, "n/a", 10, "n/a"},
		{"empty", "", "x", 10, "x"},
		{"only controls", "\x00\x01\x7f", "n/a", 10, "n/a"},
		{"strips controls", "a\x00b\x1fc", "n/a", 10, "abc"},
		{"keeps whitespace controls", "a\tb\nc\rd", "n/a", 20, "a\tb\nc\rd"},
		{"float", 3.5, "n/a", 10, "3.5"},
		{"whole float", float64(42), "n/a", 10, "42"},
		{"int", 7, "n/a", 10, "7"},
		{"bool", true, "n/a", 10, "true"},
		{"map", map[string]any{"a": float64(1)}, "n/a", 100, `{"a":1}`},
		{"slice", []any{"x", float64(2)}, "n/a", 100, `["x",2]`},
		{"hard cut", "abcdefgh", "n/a", 3, "abc"},
		{"runes", "ééééé", "n/a", 2, "éé"},
		{"default max", strings.Repeat("a", 3000), "n/a", 0, strings.Repeat("a", 2000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in, tc.fallback, tc.max); got != tc.want {
				t.Fatalf("Clean(%#v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []any{"plain", "a\x00b", strings.Repeat("é", 50), "\x01", nil, 12.25, map[string]any{"k": "v"}}
	for _, in := range inputs {
		once := Clean(in, Fallback, 20)
		if twice := Clean(once, Fallback, 20); twice != once {
			t.Fatalf("Clean not idempotent for %#v: %q then %q", in, once, twice)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("fits: got %q", got)
	}
	if got := Truncate("abcdefghij", 10); got != "abcdefghij" {
		t.Fatalf("exact fit: got %q", got)
	}
	if got := Truncate("abcdefghijk", 10); got != "abcdefg..." {
		t.Fatalf("cut: got %q", got)
	}
	if got := Truncate(nil, 2); got != Fallback {
		t.Fatalf("fallback: got %q", got)
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Fatalf("tiny max: got %q", got)
	}

	long := strings.Repeat("ü", 500)
	for _, max := range []int{3, 4, 10, 80, 499} {
		if n := utf8.RuneCountInString(Truncate(long, max)); n > max {
			t.Fatalf("Truncate(_, %d) has %d runes", max, n)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	cases := []struct {
		in   any
		ok   bool
		want time.Time
	}{
		{"2024-01-05T15:04:05Z", true, time.Date(2024, 1, 5, 15, 4, 5, 0, time.UTC)},
		{"2024-01-05T15:04:05.123Z", true, time.Date(2024, 1, 5, 15, 4, 5, 123e6, time.UTC)},
		{"2024-01-05T15:04:05+01:00", true, time.Date(2024, 1, 5, 14, 4, 5, 0, time.UTC)},
		{"2024-01-05T15:04:05", true, time.Date(2024, 1, 5, 15, 4, 5, 0, loc)},
		{"2024-01-05 15:04:05", true, time.Date(2024, 1, 5, 15, 4, 5, 0, loc)},
		{"2024-01-05", true, time.Date(2024, 1, 5, 0, 0, 0, 0, loc)},
		{"yesterday", false, time.Time{}},
		{"", false, time.Time{}},
		{float64(1704467045), false, time.Time{}},
		{nil, false, time.Time{}},
	}
	for _, tc := range cases {
		got, ok := ParseTimestamp(tc.in, loc)
		if ok != tc.ok {
			t.Fatalf("ParseTimestamp(%#v) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("ParseTimestamp(%#v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp("2024-01-05T15:04:05Z", time.UTC); got != "Jan 5, 2024, 3:04:05 PM" {
		t.Fatalf("got %q", got)
	}
	if got := FormatTimestamp("2024-01-05T15:04:05Z", time.FixedZone("KST", 9*3600)); got != "Jan 6, 2024, 12:04:05 AM" {
		t.Fatalf("zone: got %q", got)
	}
	if got := FormatTimestamp("not a date", time.UTC); got != Fallback {
		t.Fatalf("invalid: got %q", got)
	}
	if got := FormatTimestamp(nil, nil); got != Fallback {
		t.Fatalf("nil: got %q", got)
	}
}
