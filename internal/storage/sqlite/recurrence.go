package sqlite

import (
	"context"
	"time"
)

// Signal recurrence markers are detector-side input, not lifecycle state, so
// the table is unprotected: no attribution gate and no audit rows. The
// regression watch sweep consumes them read-only.

// RecordRecurrence notes that a signal matching the aggregation key fired
// again at the given instant.
func (s *Store) RecordRecurrence(ctx context.Context, aggregationKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signal_recurrences (aggregation_key, recurred_at) VALUES (?, ?)`,
		aggregationKey, timeStr(at))
	if err != nil {
		return wrapDBError("record recurrence", err)
	}
	return nil
}

// HasRecurrenceSince reports whether the aggregation key fired at or after
// the given instant.
func (s *Store) HasRecurrenceSince(ctx context.Context, aggregationKey string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signal_recurrences WHERE aggregation_key = ? AND recurred_at >= ?`,
		aggregationKey, timeStr(since)).Scan(&n)
	if err != nil {
		return false, wrapDBError("check recurrence", err)
	}
	return n > 0, nil
}
