// Package blinktime converts between Blink's epoch-relative time/date
// primitives and the ISO-8601 strings used by the Tag, JSON, and XML
// codecs. It is built on the standard library's time package: no example
// repo in the retrieval pack wires a third-party calendar or duration
// library, and Blink's time primitives are plain epoch offsets with no
// timezone or calendar math beyond what time.Time already provides.
package blinktime

import (
	"fmt"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	milliDayLayout = "15:04:05.000"
	nanoDayLayout  = "15:04:05.000000000"
	milliLayout    = "2006-01-02T15:04:05.000Z"
	nanoLayout     = "2006-01-02T15:04:05.000000000Z"
)

// FormatDate renders a day count (days since the Unix epoch, UTC) as
// "YYYY-MM-DD".
func FormatDate(days int32) string {
	return time.Unix(int64(days)*86400, 0).UTC().Format(dateLayout)
}

// ParseDate parses "YYYY-MM-DD" into a day count since the Unix epoch.
func ParseDate(s string) (int32, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("blinktime: invalid date %q: %w", s, err)
	}

	return int32(t.Unix() / 86400), nil
}

// FormatTimeOfDayMilli renders milliseconds since midnight UTC as
// "HH:MM:SS.mmm".
func FormatTimeOfDayMilli(ms uint32) string {
	t := time.Unix(0, 0).UTC().Add(time.Duration(ms) * time.Millisecond)
	return t.Format(milliDayLayout)
}

// ParseTimeOfDayMilli parses "HH:MM:SS.mmm" into milliseconds since
// midnight.
func ParseTimeOfDayMilli(s string) (uint32, error) {
	t, err := time.Parse(milliDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("blinktime: invalid time-of-day %q: %w", s, err)
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	return uint32(t.Sub(midnight).Milliseconds()), nil
}

// FormatTimeOfDayNano renders nanoseconds since midnight UTC as
// "HH:MM:SS.nnnnnnnnn".
func FormatTimeOfDayNano(ns uint64) string {
	t := time.Unix(0, 0).UTC().Add(time.Duration(ns))
	return t.Format(nanoDayLayout)
}

// ParseTimeOfDayNano parses "HH:MM:SS.nnnnnnnnn" into nanoseconds since
// midnight.
func ParseTimeOfDayNano(s string) (uint64, error) {
	t, err := time.Parse(nanoDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("blinktime: invalid time-of-day %q: %w", s, err)
	}

	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	return uint64(t.Sub(midnight).Nanoseconds()), nil
}

// FormatMilliTime renders milliseconds since the Unix epoch as an ISO-8601
// instant with millisecond precision.
func FormatMilliTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(milliLayout)
}

// ParseMilliTime parses an ISO-8601 instant into milliseconds since the
// Unix epoch.
func ParseMilliTime(s string) (int64, error) {
	t, err := time.Parse(milliLayout, s)
	if err != nil {
		return 0, fmt.Errorf("blinktime: invalid millitime %q: %w", s, err)
	}

	return t.UnixMilli(), nil
}

// FormatNanoTime renders nanoseconds since the Unix epoch as an ISO-8601
// instant with nanosecond precision.
func FormatNanoTime(ns int64) string {
	return time.Unix(0, ns).UTC().Format(nanoLayout)
}

// ParseNanoTime parses an ISO-8601 instant into nanoseconds since the Unix
// epoch.
func ParseNanoTime(s string) (int64, error) {
	t, err := time.Parse(nanoLayout, s)
	if err != nil {
		return 0, fmt.Errorf("blinktime: invalid nanotime %q: %w", s, err)
	}

	return t.Unix()*1e9 + int64(t.Nanosecond()), nil
}
