package suppression

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/triage/internal/evidence"
	"github.com/opsline/triage/internal/types"
)

func engIssue() *types.Issue {
	return &types.Issue{
		ID:           "iss-1",
		Type:         types.IssueFinancial,
		ClientID:     "cli-1",
		BrandID:      "brd-1",
		EngagementID: "eng-1",
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := KeyForIssue(engIssue())
	b := KeyForIssue(engIssue())
	assert.Equal(t, a, b, "same scoping fields must always yield the same key")
}

func TestKeyShape(t *testing.T) {
	k := KeyForIssue(engIssue())
	require.True(t, strings.HasPrefix(k, KeyPrefix))
	assert.Len(t, k, len(KeyPrefix)+keyHexLen)
	for _, c := range k[len(KeyPrefix):] {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestKeyScopePreference(t *testing.T) {
	is := engIssue()
	withEngagement := KeyForIssue(is)

	is.EngagementID = ""
	withBrand := KeyForIssue(is)

	is.BrandID = ""
	rootCause := KeyForIssue(is)

	assert.NotEqual(t, withEngagement, withBrand)
	assert.NotEqual(t, withBrand, rootCause)
	assert.NotEqual(t, withEngagement, rootCause)
}

func TestRootCauseFingerprintUsesPayloadShape(t *testing.T) {
	env := evidence.New("late_invoice", "", "billing", "x")
	env.Payload["days_overdue"] = 3
	env.Payload["amount_cents"] = 100
	raw1, err := env.Marshal()
	require.NoError(t, err)

	// Same field names, different values: same class of problem.
	env.Payload["days_overdue"] = 99
	env.Payload["amount_cents"] = 5
	raw2, err := env.Marshal()
	require.NoError(t, err)

	is1 := &types.Issue{Type: types.IssueFinancial, ClientID: "cli-1", Evidence: raw1}
	is2 := &types.Issue{Type: types.IssueFinancial, ClientID: "cli-1", Evidence: raw2}
	assert.Equal(t, KeyForIssue(is1), KeyForIssue(is2))

	// A different payload shape is a different root cause.
	env.Payload["vendor"] = "acme"
	raw3, err := env.Marshal()
	require.NoError(t, err)
	is3 := &types.Issue{Type: types.IssueFinancial, ClientID: "cli-1", Evidence: raw3}
	assert.NotEqual(t, KeyForIssue(is1), KeyForIssue(is3))
}

func TestSignalKeyExcludesInstanceIdentity(t *testing.T) {
	// Two different signal instances with the same scoping tuple must
	// collapse to one key: the class is suppressed, not the occurrence.
	a := KeyForSignal(types.ItemTypeFlaggedSignal, "cli-1", "eng-1", "email", "late_reply")
	b := KeyForSignal(types.ItemTypeFlaggedSignal, "cli-1", "eng-1", "email", "late_reply")
	assert.Equal(t, a, b)

	c := KeyForSignal(types.ItemTypeFlaggedSignal, "cli-1", "eng-1", "email", "missed_meeting")
	assert.NotEqual(t, a, c, "different rule is a different class")

	d := KeyForSignal(types.ItemTypeAmbiguous, "cli-1", "eng-1", "email", "late_reply")
	assert.NotEqual(t, a, d, "item type participates in the key")
}

func TestKeyForItemDispatch(t *testing.T) {
	issueItem := &types.InboxItem{
		ID:                "inb-1",
		Type:              types.ItemTypeIssue,
		UnderlyingIssueID: "iss-1",
	}
	_, err := KeyForItem(issueItem, nil)
	require.Error(t, err, "issue-backed item needs its underlying issue")

	k, err := KeyForItem(issueItem, engIssue())
	require.NoError(t, err)
	assert.Equal(t, KeyForIssue(engIssue()), k)

	signalItem := &types.InboxItem{
		ID:                 "inb-2",
		Type:               types.ItemTypeFlaggedSignal,
		UnderlyingSignalID: "sig-42",
		ClientID:           "cli-1",
		EngagementID:       "eng-1",
		SignalSource:       "email",
		SignalRule:         "late_reply",
	}
	k2, err := KeyForItem(signalItem, nil)
	require.NoError(t, err)
	assert.Equal(t, KeyForSignal(types.ItemTypeFlaggedSignal, "cli-1", "eng-1", "email", "late_reply"), k2)

	// Per-instance signal id must not influence the key.
	signalItem.UnderlyingSignalID = "sig-43"
	k3, err := KeyForItem(signalItem, nil)
	require.NoError(t, err)
	assert.Equal(t, k2, k3)
}
