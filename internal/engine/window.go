package engine

import (
	"fmt"
	"time"
)

// maxHourSteps bounds the forward scan for a matching hour. One day plus one
// hour covers the longest day of a daylight-saving transition.
const maxHourSteps = 25

// ResolveWindow maps now and a start/end hour-of-day in loc to the absolute
// bounds of the next query window. The end is always after the start, so a
// window whose end hour is before its start hour spans midnight.
func ResolveWindow(now time.Time, startHour, endHour int, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = now.Location()
	}
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return time.Time{}, time.Time{}, fmt.Errorf("window hours %d-%d out of range 0-23: %w", startHour, endHour, ErrConfiguration)
	}

	start, err := nextHour(now, startHour, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := nextHour(start, endHour, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// nextHour finds the first full hour strictly after from whose local
// hour-of-day equals hour
func nextHour(from time.Time, hour int, loc *time.Location) (time.Time, error) {
	t := from.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < maxHourSteps; i++ {
		if t.In(loc).Hour() == hour {
			return t.In(loc), nil
		}
		t = t.Add(time.Hour)
	}
	return time.Time{}, fmt.Errorf("no hour %02d:00 within %d hours after %s: %w",
		hour, maxHourSteps, from.Format(time.RFC3339), ErrConfiguration)
}
