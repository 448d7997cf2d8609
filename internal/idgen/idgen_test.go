package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestNewDeterministic(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	a := New(IssuePrefix, at, 0, "financial", "cli-1", "eng-9")
	b := New(IssuePrefix, at, 0, "financial", "cli-1", "eng-9")
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
}

func TestNewNonceChangesID(t *testing.T) {
	at := time.Now()
	a := New(InboxPrefix, at, 0, "sig-1")
	b := New(InboxPrefix, at, 1, "sig-1")
	if a == b {
		t.Error("nonce bump should change the ID")
	}
}

func TestNewShape(t *testing.T) {
	id := New(InboxPrefix, time.Now(), 0, "x")
	if !strings.HasPrefix(id, "inb-") {
		t.Errorf("missing prefix: %s", id)
	}
	if len(id) != len("inb-")+6 {
		t.Errorf("unexpected length: %s", id)
	}
	for _, c := range id[len("inb-"):] {
		if !strings.ContainsRune(base36Alphabet, c) {
			t.Errorf("non-base36 character %q in %s", c, id)
		}
	}
}

func TestHasPrefix(t *testing.T) {
	if !HasPrefix("iss-abc123", IssuePrefix) {
		t.Error("expected match")
	}
	if HasPrefix("issabc123", IssuePrefix) {
		t.Error("prefix must be dash-separated")
	}
	if HasPrefix("inb-abc123", IssuePrefix) {
		t.Error("wrong kind matched")
	}
}

func TestEncodeBase36Padding(t *testing.T) {
	s := encodeBase36([]byte{0, 0, 0, 1}, 6)
	if len(s) != 6 {
		t.Fatalf("expected fixed width, got %q", s)
	}
	if !strings.HasPrefix(s, "00000") {
		t.Errorf("expected zero padding, got %q", s)
	}
}
