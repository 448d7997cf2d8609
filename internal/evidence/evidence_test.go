package evidence

import (
	"strings"
	"testing"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	env := New("invoice_overdue", "Invoice #1042 overdue 12 days", "billing", "inv-1042")
	env.Payload["days_overdue"] = float64(12)
	env.Payload["amount_cents"] = float64(128700)

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	back, pi := Parse(raw)
	if pi != nil {
		t.Fatalf("Parse returned issue for valid envelope: %v", pi)
	}
	if back.Kind != "invoice_overdue" || back.SourceSystem != "billing" {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if back.Payload["days_overdue"] != float64(12) {
		t.Errorf("payload lost: %+v", back.Payload)
	}
}

func TestParseEmptyIsNotDegraded(t *testing.T) {
	env, pi := Parse("")
	if pi != nil {
		t.Fatalf("empty evidence should not be a parse issue: %v", pi)
	}
	if env.Payload == nil {
		t.Error("default envelope must still carry a structured payload map")
	}
}

func TestParseMalformedPreservesSnippet(t *testing.T) {
	raw := `{"version":"v1","kind":"x","payload":"free string not a map"` + strings.Repeat("!", 300)
	env, pi := Parse(raw)
	if pi == nil {
		t.Fatal("expected parse issue for malformed evidence")
	}
	if len(pi.Snippet) == 0 || len(pi.Snippet) > 120 {
		t.Errorf("snippet not bounded: %d bytes", len(pi.Snippet))
	}
	if !strings.HasPrefix(raw, pi.Snippet) {
		t.Error("snippet should be a prefix of the raw value")
	}
	// Recovered default is still usable.
	if env.Payload == nil || env.Version != Version {
		t.Errorf("recovered envelope unusable: %+v", env)
	}
}

func TestParseRejectsNullPayload(t *testing.T) {
	_, pi := Parse(`{"version":"v1","kind":"x","display_text":"","source_system":"s","source_id":"1","payload":null}`)
	if pi == nil {
		t.Fatal("null payload must be flagged, not defaulted silently")
	}
}

func TestValidate(t *testing.T) {
	env := New("k", "", "s", "1")
	if err := env.Validate(); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}

	env.Version = "v2"
	if err := env.Validate(); err == nil {
		t.Error("unknown version accepted")
	}

	env = New("", "", "s", "1")
	if err := env.Validate(); err == nil {
		t.Error("missing kind accepted")
	}

	env = New("k", "", "s", "1")
	env.Payload = nil
	if _, err := env.Marshal(); err == nil {
		t.Error("nil payload must not marshal")
	}
}

func TestPayloadFieldNames(t *testing.T) {
	env := New("k", "", "s", "1")
	env.Payload["b"] = 1
	env.Payload["a"] = 2
	names := env.PayloadFieldNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
