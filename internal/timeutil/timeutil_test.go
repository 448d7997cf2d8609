package timeutil

import (
	"testing"
	"time"
)

func TestUTCTruncatesSubsecond(t *testing.T) {
	in := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.FixedZone("PST", -8*3600))
	got := UTC(in)
	if got.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got.Location())
	}
	if got.Nanosecond() != 0 {
		t.Errorf("expected nanoseconds dropped, got %d", got.Nanosecond())
	}
	if got.Hour() != 23 {
		t.Errorf("expected 23h UTC for 15h PST, got %d", got.Hour())
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	now := Now()
	s := FormatUTC(now)
	back, err := ParseUTC(s)
	if err != nil {
		t.Fatalf("ParseUTC(%q): %v", s, err)
	}
	if !back.Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", back, now)
	}
}

func TestParseUTCRejectsGarbage(t *testing.T) {
	if _, err := ParseUTC("yesterday-ish"); err == nil {
		t.Error("expected error for non-RFC3339 input")
	}
}

func TestOrgDayBoundaries(t *testing.T) {
	loc, err := OrgLocation("America/New_York")
	if err != nil {
		t.Fatalf("OrgLocation: %v", err)
	}

	// 2026-01-15 02:30 UTC is still Jan 14 in New York.
	at := time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC)
	start := OrgDayStart(at, loc)
	end := OrgDayEnd(at, loc)

	if start.In(loc).Day() != 14 {
		t.Errorf("expected org day 14, got %d", start.In(loc).Day())
	}
	if !end.Equal(start.AddDate(0, 0, 1)) {
		t.Errorf("day window not 24h aligned: %v .. %v", start, end)
	}
	if at.Before(start) || !at.Before(end) {
		t.Errorf("instant not inside its own day window")
	}
}

func TestOrgLocationCachesAndDefaults(t *testing.T) {
	a, err := OrgLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("OrgLocation: %v", err)
	}
	b, err := OrgLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("OrgLocation (cached): %v", err)
	}
	if a != b {
		t.Error("expected cached *time.Location to be reused")
	}

	utc, err := OrgLocation("")
	if err != nil || utc != time.UTC {
		t.Errorf("empty name should mean UTC, got %v (%v)", utc, err)
	}

	if _, err := OrgLocation("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestSameOrgDay(t *testing.T) {
	loc, _ := OrgLocation("America/Los_Angeles")
	a := time.Date(2026, 6, 2, 6, 59, 0, 0, time.UTC)  // Jun 1 23:59 PDT
	b := time.Date(2026, 6, 2, 7, 1, 0, 0, time.UTC)   // Jun 2 00:01 PDT
	if SameOrgDay(a, b, loc) {
		t.Error("expected different org days across local midnight")
	}
	if !SameOrgDay(a, a.Add(-time.Hour), loc) {
		t.Error("expected same org day")
	}
}
