package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/kindred/internal/types"
)

// weekdayNames lists lowercase weekday names for "next <weekday>" parsing.
var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseRelativeDate resolves a relative timing phrase against today. The
// timing phrase from the extractor is checked first, then the original
// message for "next <weekday>" mentions. Returns false when nothing in
// either text names a resolvable date.
func ParseRelativeDate(timing, message string, today time.Time) (time.Time, bool) {
	today = civil(today)
	timingLower := strings.ToLower(timing)
	messageLower := strings.ToLower(message)

	switch {
	case strings.Contains(timingLower, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(timingLower, "today"), strings.Contains(timingLower, "tonight"):
		return today, true
	case strings.Contains(timingLower, "yesterday"):
		return today.AddDate(0, 0, -1), true
	case strings.Contains(timingLower, "next week"):
		return today.AddDate(0, 0, 7), true
	case strings.Contains(timingLower, "this weekend"):
		return today.AddDate(0, 0, daysToWeekend(today)), true
	case strings.Contains(timingLower, "next month"):
		return today.AddDate(0, 0, 30), true
	}

	// When several weekdays are named, the first one mentioned wins.
	first := -1
	var firstDay time.Weekday
	for _, w := range weekdayNames {
		idx := strings.Index(messageLower, "next "+w.name)
		if idx >= 0 && (first < 0 || idx < first) {
			first = idx
			firstDay = w.day
		}
	}
	if first >= 0 {
		ahead := int(firstDay-today.Weekday()+7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}

	return time.Time{}, false
}

// daysToWeekend returns the days until Saturday, or 1 when today already is
// the weekend.
func daysToWeekend(today time.Time) int {
	switch today.Weekday() {
	case time.Saturday, time.Sunday:
		return 1
	default:
		return int(time.Saturday - today.Weekday())
	}
}

// WindowBucket classifies an event date relative to today into the
// follow-up window. Returns false for events outside the window (and for
// undated events), which are never eligible for a proactive greeting.
func WindowBucket(event *types.Event, today time.Time) (string, bool) {
	date, ok := event.Date(today.Location())
	if !ok {
		return "", false
	}
	days := calendarDays(today, date)
	switch {
	case days == 0:
		return "today", true
	case days == -1:
		return "yesterday", true
	case days == 1:
		return "in 1 day", true
	case days == 2:
		return "in 2 days", true
	}
	return "", false
}

// calendarDays returns the number of calendar days from a to b, immune to
// DST offsets within a location.
func calendarDays(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

// describeWindow phrases the bucket for fallback greetings.
func describeWindow(bucket string) string {
	if bucket == "today" || bucket == "yesterday" {
		return fmt.Sprintf("go %s", bucket)
	}
	return "coming up"
}
