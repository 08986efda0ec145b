package transform

import (
	"fmt"
	"strings"
	"time"
)

// Calendar units accepted by truncate_time in addition to fixed durations.
const (
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
	UnitYear  = "year"
)

// WindowSpec is a parsed truncation unit: either a calendar unit or a fixed size.
type WindowSpec struct {
	Unit string        // day, week, month, year; empty for fixed sizes
	Size time.Duration // fixed bucket size when Unit is empty
}

// ParseWindowSize parses a calendar unit or a duration string.
// Supports Go duration syntax (e.g., "10s", "1m", "1h") plus "Xd" for days.
func ParseWindowSize(s string) (WindowSpec, error) {
	if s == "" {
		return WindowSpec{}, fmt.Errorf("unit must not be empty")
	}
	switch u := strings.ToLower(s); u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return WindowSpec{Unit: u}, nil
	}

	// Handle "d" suffix (days), not supported by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return WindowSpec{}, fmt.Errorf("invalid unit %q: %w", s, err)
		}
		if days <= 0 {
			return WindowSpec{}, fmt.Errorf("unit must be positive, got %q", s)
		}
		return WindowSpec{Size: time.Duration(days) * 24 * time.Hour}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return WindowSpec{}, fmt.Errorf("invalid unit %q: %w", s, err)
	}
	if d <= 0 {
		return WindowSpec{}, fmt.Errorf("unit must be positive, got %q", s)
	}
	return WindowSpec{Size: d}, nil
}

// Truncate maps t to the start of its window, in UTC.
// Weeks start on Monday.
func (w WindowSpec) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch w.Unit {
	case UnitDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case UnitWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case UnitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case UnitYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return BucketFor(t, w.Size)
}

// BucketFor truncates a timestamp to the nearest granularity boundary.
// Example: BucketFor(10:35:42, 1*time.Minute) → 10:35:00
func BucketFor(t time.Time, granularity time.Duration) time.Time {
	return t.Truncate(granularity)
}
