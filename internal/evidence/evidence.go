// Package evidence defines the versioned evidence envelope persisted with
// issues and inbox items.
//
// Detectors and the surfacing API emit this shape; the lifecycle layer
// guarantees payload is always a structured map, never a free string. How a
// given source_system is rendered is owned by the UI layer, not here.
package evidence

import (
	"encoding/json"
	"fmt"
)

// Version is the only envelope version currently written.
const Version = "v1"

// snippetLimit bounds how much raw malformed evidence is preserved for
// diagnosis on a degraded read.
const snippetLimit = 120

// Envelope is the persisted evidence shape.
type Envelope struct {
	Version      string         `json:"version"`
	Kind         string         `json:"kind"`
	URL          *string        `json:"url"`
	DisplayText  string         `json:"display_text"`
	SourceSystem string         `json:"source_system"`
	SourceID     string         `json:"source_id"`
	Payload      map[string]any `json:"payload"`
}

// New returns an envelope of the current version with a non-nil payload.
func New(kind, displayText, sourceSystem, sourceID string) Envelope {
	return Envelope{
		Version:      Version,
		Kind:         kind,
		DisplayText:  displayText,
		SourceSystem: sourceSystem,
		SourceID:     sourceID,
		Payload:      map[string]any{},
	}
}

// Validate checks the envelope contract before persisting.
func (e *Envelope) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("unsupported evidence version %q", e.Version)
	}
	if e.Kind == "" {
		return fmt.Errorf("evidence kind is required")
	}
	if e.Payload == nil {
		return fmt.Errorf("evidence payload must be a structured map, not null")
	}
	return nil
}

// Marshal renders the envelope for storage.
func (e *Envelope) Marshal() (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}
	return string(raw), nil
}

// ParseIssue describes evidence that failed to parse on read. The read is
// recovered with a default envelope, but the failure is surfaced so callers
// can flag the record as trust-degraded instead of pretending the data was
// always empty.
type ParseIssue struct {
	Snippet string // bounded excerpt of the raw value
	Err     error
}

func (p *ParseIssue) Error() string {
	return fmt.Sprintf("malformed evidence (snippet %q): %v", p.Snippet, p.Err)
}

func (p *ParseIssue) Unwrap() error { return p.Err }

// Parse decodes a persisted evidence value.
//
// On malformed input it returns a usable default envelope plus a non-nil
// *ParseIssue; callers must record the degradation (trust flag, debug log),
// never swallow it. An empty raw value is not an error: records created
// before evidence was attached simply have none.
func Parse(raw string) (Envelope, *ParseIssue) {
	if raw == "" {
		return New("none", "", "", ""), nil
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return New("none", "", "", ""), &ParseIssue{Snippet: snippet(raw), Err: err}
	}
	if err := env.Validate(); err != nil {
		return New("none", "", "", ""), &ParseIssue{Snippet: snippet(raw), Err: err}
	}
	return env, nil
}

// PayloadFieldNames returns the top-level payload keys. Used by the
// suppression engine's root-cause fingerprint.
func (e *Envelope) PayloadFieldNames() []string {
	names := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		names = append(names, k)
	}
	return names
}

func snippet(raw string) string {
	if len(raw) <= snippetLimit {
		return raw
	}
	return raw[:snippetLimit]
}
