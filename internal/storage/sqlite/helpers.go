package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/timeutil"
)

// Timestamps are persisted as canonical RFC3339 UTC strings rather than
// driver-native time values, so the format is identical regardless of which
// SQLite driver or external tool reads the file.

func timeStr(t time.Time) string {
	return timeutil.FormatUTC(t)
}

// nullTimeStr renders an optional timestamp for an insert/update arg.
func nullTimeStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeutil.FormatUTC(*t)
}

// parseTime decodes a required timestamp column.
func parseTime(s string) (time.Time, error) {
	t, err := timeutil.ParseUTC(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp column: %w", err)
	}
	return t, nil
}

// parseNullTime decodes an optional timestamp column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
