package sqlite

import (
	"fmt"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/types"
)

// Invariant rule names, surfaced in InvariantError so operators and tests
// can tell rejections apart.
const (
	ruleAttributionRequired      = "attribution_required"
	ruleExactlyOneUnderlying     = "exactly_one_underlying"
	ruleTypeUnderlyingMapping    = "type_underlying_mapping"
	ruleSnoozedRequiresUntil     = "snoozed_requires_until"
	ruleTerminalRequiresResolved = "terminal_requires_resolved_at"
	ruleDismissedRequiresAudit   = "dismissed_requires_audit_fields"
	ruleLinkedRequiresIssue      = "linked_requires_issue_pointer"
	ruleNoPersistedResolved      = "no_persisted_resolved"
	ruleClosedRequiresClosedAt   = "closed_requires_closed_at"
	ruleWatchRequiresDeadline    = "regression_watch_requires_deadline"
	ruleValidEnum                = "valid_enum_value"
	ruleAuditAppendOnly          = "audit_append_only"
)

// requireAttribution is the gate in front of every protected-table write.
// It runs inside the same transaction as the write, so there is no window
// where an unattributed mutation can slip through.
func requireAttribution(actx *attribution.Context) error {
	if actx == nil {
		return fmt.Errorf("%s: %w", ruleAttributionRequired, storage.ErrNoAttribution)
	}
	if err := actx.Validate(); err != nil {
		return fmt.Errorf("%s: %w", ruleAttributionRequired, storage.ErrNoAttribution)
	}
	return nil
}

// checkInboxInvariants evaluates the storage-level guards for an inbox item
// write. It is invoked by every insert/update path, independent of which
// caller issued the write; the returned error class is distinguishable from
// generic database failures.
func checkInboxInvariants(it *types.InboxItem) *storage.InvariantError {
	fail := func(rule, detail string) *storage.InvariantError {
		return &storage.InvariantError{Table: "inbox_items", RowID: it.ID, Rule: rule, Detail: detail}
	}

	if !it.Type.IsValid() || !it.State.IsValid() || !it.Severity.IsValid() {
		return fail(ruleValidEnum, "unknown type, state or severity value")
	}

	hasIssue := it.UnderlyingIssueID != ""
	hasSignal := it.UnderlyingSignalID != ""
	if hasIssue == hasSignal {
		return fail(ruleExactlyOneUnderlying, "exactly one of underlying_issue_id/underlying_signal_id must be set")
	}
	if it.Type == types.ItemTypeIssue && !hasIssue {
		return fail(ruleTypeUnderlyingMapping, "issue items must reference an underlying issue")
	}
	if it.Type != types.ItemTypeIssue && !hasSignal {
		return fail(ruleTypeUnderlyingMapping, string(it.Type)+" items must reference an underlying signal")
	}

	switch it.State {
	case types.ItemSnoozed:
		if it.SnoozeUntil == nil {
			return fail(ruleSnoozedRequiresUntil, "snoozed items must have snooze_until")
		}
	case types.ItemDismissed:
		if it.ResolvedAt == nil {
			return fail(ruleTerminalRequiresResolved, "terminal states require resolved_at")
		}
		if it.DismissedAt == nil || it.DismissedBy == "" || it.SuppressionKey == "" {
			return fail(ruleDismissedRequiresAudit, "dismissed items must have dismissed_at, dismissed_by and suppression_key")
		}
	case types.ItemLinkedToIssue:
		if it.ResolvedAt == nil {
			return fail(ruleTerminalRequiresResolved, "terminal states require resolved_at")
		}
		if it.ResolvedIssueID == "" {
			return fail(ruleLinkedRequiresIssue, "linked items must have resolved_issue_id")
		}
	}
	return nil
}

// checkIssueInvariants evaluates the storage-level guards for an issue write.
func checkIssueInvariants(is *types.Issue) *storage.InvariantError {
	fail := func(rule, detail string) *storage.InvariantError {
		return &storage.InvariantError{Table: "issues", RowID: is.ID, Rule: rule, Detail: detail}
	}

	if !is.Type.IsValid() || !is.State.IsValid() || !is.Severity.IsValid() {
		return fail(ruleValidEnum, "unknown type, state or severity value")
	}
	if is.State == types.IssueResolved {
		return fail(ruleNoPersistedResolved, "state 'resolved' is transient and must never be persisted")
	}
	if is.Title == "" || len(is.Title) > 500 {
		return fail(ruleValidEnum, "title must be 1-500 characters")
	}

	switch is.State {
	case types.IssueSnoozed:
		if is.SnoozeUntil == nil {
			return fail(ruleSnoozedRequiresUntil, "snoozed issues must have snooze_until")
		}
	case types.IssueRegressionWatch:
		if is.ResolvedAt == nil || is.RegressionWatchUntil == nil {
			return fail(ruleWatchRequiresDeadline, "regression_watch requires resolved_at and regression_watch_until")
		}
	case types.IssueClosed:
		if is.ClosedAt == nil {
			return fail(ruleClosedRequiresClosedAt, "closed issues must have closed_at")
		}
	case types.IssueRegressed:
		if is.RegressedAt == nil {
			return fail(ruleValidEnum, "regressed issues must have regressed_at")
		}
	}
	if is.State != types.IssueClosed && is.ClosedAt != nil {
		return fail(ruleClosedRequiresClosedAt, "non-closed issues cannot have closed_at")
	}
	return nil
}
