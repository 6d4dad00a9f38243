package model

import (
	"fmt"
	"strings"
	"time"
)

// ParseWeekday parses an English weekday name ("monday", "Sun", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// StartOfWeek returns local midnight of the most recent startDay on or
// before t, in t's location.
func StartOfWeek(t time.Time, startDay time.Weekday) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(midnight.Weekday()) - int(startDay) + 7) % 7
	return midnight.AddDate(0, 0, -offset)
}

// WeekRange returns the week starts of the rolling window
// [now - pastWeeks, now + futureWeeks] in loc, oldest first.
func WeekRange(now time.Time, loc *time.Location, startDay time.Weekday, pastWeeks, futureWeeks int) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	current := StartOfWeek(now.In(loc), startDay)
	weeks := make([]time.Time, 0, pastWeeks+futureWeeks+1)
	for i := -pastWeeks; i <= futureWeeks; i++ {
		weeks = append(weeks, current.AddDate(0, 0, 7*i))
	}
	return weeks
}

// WeekKey formats a week start as a snapshot key date.
func WeekKey(weekStart time.Time) string {
	return weekStart.Format(DateLayout)
}

// ParseWeekKey parses a week key in loc.
func ParseWeekKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse week %q: %w", key, err)
	}
	return t, nil
}

// DayChunks splits [start, end) into consecutive chunks of at most size.
func DayChunks(start, end time.Time, size time.Duration) [][2]time.Time {
	if size <= 0 || !end.After(start) {
		return nil
	}
	var chunks [][2]time.Time
	for from := start; from.Before(end); from = from.Add(size) {
		to := from.Add(size)
		if to.After(end) {
			to = end
		}
		chunks = append(chunks, [2]time.Time{from, to})
	}
	return chunks
}
