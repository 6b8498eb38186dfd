package models

import (
	"fmt"
	"strconv"
	"time"

	"magicbag/internal/common"
)

// localLayout is accepted for timestamps that carry no offset; they are read as UTC.
const localLayout = "2006-01-02T15:04:05"

// Interval is a pickup window. Start <= End is assumed, never checked.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseInterval builds an Interval from two ISO-8601 date-time strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := parseTimestamp(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := parseTimestamp(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: s, End: e}, nil
}

func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(localLayout, v, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid ISO-8601 timestamp %q", common.ErrParse, v)
}

// IsBefore reports whether now is earlier than the window.
func (i Interval) IsBefore(now time.Time) bool {
	return now.Before(i.Start)
}

// IsDuring reports whether now falls inside the window, bounds included.
func (i Interval) IsDuring(now time.Time) bool {
	return !now.Before(i.Start) && !now.After(i.End)
}

// IsAfter reports whether the window has already closed.
func (i Interval) IsAfter(now time.Time) bool {
	return now.After(i.End)
}

// StartString and EndString are the storage representation.
func (i Interval) StartString() string { return i.Start.Format(time.RFC3339) }
func (i Interval) EndString() string   { return i.End.Format(time.RFC3339) }

func (i Interval) String() string {
	sy, sm, sd := i.Start.Date()
	ey, em, ed := i.End.Date()
	if sy == ey && sm == em && sd == ed {
		return formatDay(i.Start) + ", " + formatClock(i.Start) + "-" + formatClock(i.End)
	}
	return formatDay(i.Start) + ", " + formatClock(i.Start) + " - " + formatDay(i.End) + ", " + formatClock(i.End)
}

func formatDay(t time.Time) string {
	return t.Format("Jan 02")
}

// formatClock renders a 24-hour clock with no leading zero on the hour.
func formatClock(t time.Time) string {
	return strconv.Itoa(t.Hour()) + t.Format(":04")
}
