// Package clock resolves the calendar date and weekday as observed in a
// household's time zone. The server commonly runs in UTC while households
// expect chore resets aligned to their local midnight, so "today" must be
// computed in the configured zone, never the host's.
package clock

import "time"

// Day is a calendar day as observed in a particular zone.
type Day struct {
	Date    string // YYYY-MM-DD
	Weekday int    // 0=Sunday .. 6=Saturday
	Name    string // "Sunday" .. "Saturday"
	TZ      string
	// Degraded is set when the requested zone could not be loaded and the
	// host's local zone was used instead. Callers log it; the result is
	// still a valid day, just possibly off by the zone offset.
	Degraded bool
}

// ResolveDay returns the calendar day containing the given instant in the
// named IANA zone. It never fails: an unknown or empty zone falls back to
// the host's local zone with Degraded set.
func ResolveDay(tz string, at time.Time) Day {
	if tz == "" {
		return localDay(at)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return localDay(at)
	}
	t := at.In(loc)
	return Day{
		Date:    t.Format("2006-01-02"),
		Weekday: int(t.Weekday()),
		Name:    t.Weekday().String(),
		TZ:      tz,
	}
}

func localDay(at time.Time) Day {
	t := at.Local()
	return Day{
		Date:     t.Format("2006-01-02"),
		Weekday:  int(t.Weekday()),
		Name:     t.Weekday().String(),
		TZ:       t.Location().String(),
		Degraded: true,
	}
}
