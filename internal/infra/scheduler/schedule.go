package scheduler

import (
	"fmt"
	"time"
)

// Daily fires once a day at a local wall-clock time.
type Daily struct {
	Hour, Minute int
	Loc          *time.Location
}

// ParseDaily reads "HH:MM" in loc.
func ParseDaily(hhmm string, loc *time.Location) (Daily, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return Daily{}, fmt.Errorf("daily time %q: %w", hhmm, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Daily{Hour: t.Hour(), Minute: t.Minute(), Loc: loc}, nil
}

// Next uses the calendar, not a 24h offset, so DST days fire at the same local time.
func (d Daily) Next(t time.Time) time.Time {
	local := t.In(d.Loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, d.Loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, d.Loc)
	}
	return next
}

// Every fires at a fixed interval.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time {
	d := time.Duration(e)
	if d <= 0 {
		d = time.Minute
	}
	return t.Add(d)
}
