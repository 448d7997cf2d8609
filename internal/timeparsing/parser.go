// Package timeparsing provides layered parsing for snooze deadlines.
//
// Parsing is tried in order:
//  1. Compact duration (6h, 2d, 1w)
//  2. Absolute timestamp (RFC3339, date-only)
//  3. Natural language ("tomorrow", "next monday")
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: (\d+)([hdwmy])
// Examples: 6h, 1d, 2w, 3m, 1y
var compactDurationRe = regexp.MustCompile(`^\+?(\d+)([hdwmy])$`)

var nlParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseCompactDuration parses compact snooze syntax into a duration.
//
// Units: h = hours, d = days, w = weeks, m = 30-day months, y = 365-day
// years. Months and years are fixed-length here: snooze deadlines are
// durations from now, not calendar anniversaries.
func ParseCompactDuration(s string) (time.Duration, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration amount: %q", matches[1])
	}

	day := 24 * time.Hour
	switch matches[2] {
	case "h":
		return time.Duration(amount) * time.Hour, nil
	case "d":
		return time.Duration(amount) * day, nil
	case "w":
		return time.Duration(amount) * 7 * day, nil
	case "m":
		return time.Duration(amount) * 30 * day, nil
	case "y":
		return time.Duration(amount) * 365 * day, nil
	}
	return 0, fmt.Errorf("unknown duration unit: %q", matches[2])
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseUntil resolves a user-supplied deadline expression against now.
// Layered: compact duration, then absolute timestamp, then natural
// language. Absolute forms go first: "2026-09-01" must mean September 1,
// not a partial natural-language read of the digits.
func ParseUntil(s string, now time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		d, err := ParseCompactDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}

	// Accept a natural-language result only when it consumed the whole
	// input; partial matches ("today at 09:01" out of an unrelated string)
	// are rejections, not answers.
	if r, err := nlParser.Parse(s, now); err == nil && r != nil && r.Index == 0 && r.Text == s {
		return r.Time, nil
	}

	return time.Time{}, fmt.Errorf("cannot parse deadline %q: expected a duration (2d), natural language (tomorrow), or timestamp (2026-09-01)", s)
}

// ParseDuration resolves a user-supplied snooze expression to a duration
// from now. Deadline-style inputs are converted to the remaining interval.
func ParseDuration(s string, now time.Time) (time.Duration, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s)
	}
	until, err := ParseUntil(s, now)
	if err != nil {
		return 0, err
	}
	d := until.Sub(now)
	if d <= 0 {
		return 0, fmt.Errorf("deadline %q is in the past", s)
	}
	return d, nil
}
