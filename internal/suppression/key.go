// Package suppression computes deterministic fingerprints for dismissed
// conditions.
//
// A suppression key identifies the *class* of problem that was dismissed,
// not one occurrence of it: keys are built from type and entity-scoping
// fields only, never from per-instance identifiers. The same condition
// re-detected while a rule is active hashes to the same key and is blocked
// before a new record is created.
package suppression

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/opsline/triage/internal/evidence"
	"github.com/opsline/triage/internal/types"
)

// KeyPrefix marks the key format version. A future change to the canonical
// payload bumps this so old rules never collide with new keys.
const KeyPrefix = "sk1:"

// keyHexLen is how many hex characters of the hash are kept.
const keyHexLen = 40

// canonical renders a key-sorted payload and hashes it. Determinism comes
// from the sort: callers can assemble the map in any order.
func canonical(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(payload[k])
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return KeyPrefix + fmt.Sprintf("%x", sum)[:keyHexLen]
}

// KeyForIssue computes the suppression key for an issue-backed dismissal.
//
// Scope preference: engagement, then brand, then a root-cause fingerprint
// derived from the issue type plus the sorted set of evidence payload field
// names. The fallbacks exist because issues detected from org-wide signals
// may have no engagement or brand attached.
func KeyForIssue(is *types.Issue) string {
	switch {
	case is.EngagementID != "":
		return canonical(map[string]string{
			"scope":      "engagement",
			"type":       string(is.Type),
			"client":     is.ClientID,
			"engagement": is.EngagementID,
		})
	case is.BrandID != "":
		return canonical(map[string]string{
			"scope":  "brand",
			"type":   string(is.Type),
			"client": is.ClientID,
			"brand":  is.BrandID,
		})
	default:
		return canonical(map[string]string{
			"scope":  "rootcause",
			"type":   string(is.Type),
			"client": is.ClientID,
			"fields": rootCauseFingerprint(is.Evidence),
		})
	}
}

// KeyForSignal computes the suppression key for a signal-backed dismissal.
// The key is scope-based (client/engagement/source/rule) and deliberately
// excludes any per-instance identifier.
func KeyForSignal(itemType types.InboxItemType, clientID, engagementID, source, rule string) string {
	return canonical(map[string]string{
		"scope":      "signal",
		"item_type":  string(itemType),
		"client":     clientID,
		"engagement": engagementID,
		"source":     source,
		"rule":       rule,
	})
}

// KeyForItem dispatches to the right key computation for an inbox item.
// For issue-backed items the underlying issue must be supplied.
func KeyForItem(it *types.InboxItem, underlying *types.Issue) (string, error) {
	if it.Type == types.ItemTypeIssue {
		if underlying == nil {
			return "", fmt.Errorf("issue-backed item %s requires its underlying issue for key computation", it.ID)
		}
		return KeyForIssue(underlying), nil
	}
	return KeyForSignal(it.Type, it.ClientID, it.EngagementID, it.SignalSource, it.SignalRule), nil
}

// rootCauseFingerprint derives a stable descriptor from the evidence payload
// shape. Malformed evidence degrades to an empty field set; the dismissal
// still gets a key, it is just broader.
func rootCauseFingerprint(raw string) string {
	env, _ := evidence.Parse(raw)
	names := env.PayloadFieldNames()
	sort.Strings(names)
	return strings.Join(names, ",")
}
