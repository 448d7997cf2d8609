// Package timeutil provides canonical UTC timestamp formatting and
// org-local day-boundary math.
//
// Every persisted timestamp in triage is UTC RFC3339; day windows (for
// "today's sweeps" style queries) are computed in the org's configured
// timezone, not the machine's.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// Format is the canonical wire/storage format for timestamps.
const Format = time.RFC3339

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

// UTC returns t normalized to UTC with second precision.
// Sub-second precision is dropped so that round-trips through the store
// (which persists RFC3339) compare equal.
func UTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Now returns the current time normalized via UTC.
func Now() time.Time {
	return UTC(time.Now())
}

// FormatUTC renders t in the canonical storage format.
func FormatUTC(t time.Time) string {
	return UTC(t).Format(Format)
}

// ParseUTC parses a canonical timestamp string.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(Format, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// OrgLocation loads and caches a timezone by IANA name.
// An empty name means UTC.
func OrgLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown org timezone %q: %w", name, err)
	}
	locCache[name] = loc
	return loc, nil
}

// OrgDayStart returns the first instant of t's calendar day in loc,
// expressed in UTC.
func OrgDayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
}

// OrgDayEnd returns the first instant of the day after t in loc, in UTC.
// Day windows are half-open: [OrgDayStart, OrgDayEnd).
func OrgDayEnd(t time.Time, loc *time.Location) time.Time {
	return OrgDayStart(t, loc).AddDate(0, 0, 1)
}

// SameOrgDay reports whether a falls within b's calendar day in loc.
func SameOrgDay(a, b time.Time, loc *time.Location) bool {
	return !a.Before(OrgDayStart(b, loc)) && a.Before(OrgDayEnd(b, loc))
}
