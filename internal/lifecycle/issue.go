package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

// DefaultWatchWindow is how long a resolved issue is watched for regression
// before it closes for good.
const DefaultWatchWindow = 90 * 24 * time.Hour

// IssueAction names a user-facing or system transition on an issue.
type IssueAction string

// Issue action constants. Surface, close and regress are system actions
// driven by thresholds and timers, not operators.
const (
	ActionAcknowledge IssueAction = "acknowledge"
	ActionAssign      IssueAction = "assign"
	ActionSnooze      IssueAction = "snooze"
	ActionSubmit      IssueAction = "submit"
	ActionResolve     IssueAction = "resolve"
	ActionUnsnooze    IssueAction = "unsnooze"
	ActionEscalate    IssueAction = "escalate"
	ActionSurface     IssueAction = "surface"
	ActionClose       IssueAction = "close"
	ActionRegress     IssueAction = "regress"
)

// issueTransitions is the full adjacency table. Anything not listed here is
// rejected; IssueResolved appears only as a conceptual hop inside resolve.
var issueTransitions = map[types.IssueState][]types.IssueState{
	types.IssueDetected:           {types.IssueSurfaced},
	types.IssueSurfaced:           {types.IssueSnoozed, types.IssueAcknowledged, types.IssueAddressing, types.IssueResolved},
	types.IssueSnoozed:            {types.IssueSurfaced},
	types.IssueAcknowledged:       {types.IssueSnoozed, types.IssueAddressing, types.IssueResolved},
	types.IssueAddressing:         {types.IssueSnoozed, types.IssueAwaitingResolution, types.IssueResolved},
	types.IssueAwaitingResolution: {types.IssueResolved},
	types.IssueResolved:           {types.IssueRegressionWatch},
	types.IssueRegressionWatch:    {types.IssueClosed, types.IssueRegressed},
	types.IssueRegressed:          {types.IssueSnoozed, types.IssueAcknowledged, types.IssueAddressing, types.IssueResolved},
	types.IssueClosed:             nil,
}

// issueActionTarget maps each state-changing action to its target state. The
// adjacency table then decides whether the hop is legal from the current
// state. Escalate is absent: it never changes state.
var issueActionTarget = map[IssueAction]types.IssueState{
	ActionAcknowledge: types.IssueAcknowledged,
	ActionAssign:      types.IssueAddressing,
	ActionSnooze:      types.IssueSnoozed,
	ActionSubmit:      types.IssueAwaitingResolution,
	ActionResolve:     types.IssueResolved,
	ActionUnsnooze:    types.IssueSurfaced,
	ActionSurface:     types.IssueSurfaced,
	ActionClose:       types.IssueClosed,
	ActionRegress:     types.IssueRegressed,
}

func canTransition(from, to types.IssueState) bool {
	for _, s := range issueTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// availableIssueActions lists every action legal in the given state,
// used for transition rejection messages.
func availableIssueActions(state types.IssueState) []string {
	var out []string
	for action, target := range issueActionTarget {
		// Unsnooze and surface share a target; only list the one that
		// matches the state we are leaving.
		if action == ActionUnsnooze && state != types.IssueSnoozed {
			continue
		}
		if action == ActionSurface && state != types.IssueDetected {
			continue
		}
		if canTransition(state, target) {
			out = append(out, string(action))
		}
	}
	if state != types.IssueClosed {
		out = append(out, string(ActionEscalate))
	}
	return out
}

// Issues drives issue transitions against the store.
type Issues struct {
	store       storage.Storage
	watchWindow time.Duration
}

// NewIssues returns an issue lifecycle manager with the default 90-day
// regression watch window.
func NewIssues(store storage.Storage) *Issues {
	return &Issues{store: store, watchWindow: DefaultWatchWindow}
}

// WithWatchWindow overrides the regression watch window (config override).
func (m *Issues) WithWatchWindow(d time.Duration) *Issues {
	if d > 0 {
		m.watchWindow = d
	}
	return m
}

func (m *Issues) reject(is *types.Issue, action IssueAction) error {
	return &TransitionError{
		Entity:    "issue",
		ID:        is.ID,
		State:     string(is.State),
		Action:    string(action),
		Available: availableIssueActions(is.State),
	}
}

// require loads the issue and checks the action's transition is legal from
// its current state.
func (m *Issues) require(ctx context.Context, tx storage.Transaction, id string, action IssueAction) (*types.Issue, error) {
	is, err := tx.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := issueActionTarget[action]
	if !ok {
		return nil, m.reject(is, action)
	}
	if !canTransition(is.State, target) {
		return nil, m.reject(is, action)
	}
	return is, nil
}

// Acknowledge marks the issue as seen by a responsible human.
func (m *Issues) Acknowledge(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionAcknowledge)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		is.State = types.IssueAcknowledged
		is.AcknowledgedAt = &now
		is.AcknowledgedBy = actx.EffectiveActor()
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Assign puts the issue into addressing under the named assignee.
func (m *Issues) Assign(ctx context.Context, actx *attribution.Context, id, assignee string) error {
	if assignee == "" {
		return fmt.Errorf("assign requires an assignee")
	}
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionAssign)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		is.State = types.IssueAddressing
		is.AssignedAt = &now
		is.AssignedTo = assignee
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Snooze pauses the issue until now + d. Any active inbox item pointing at
// the issue is archived with reason issue_snoozed_directly so health scoring
// can tell a deliberate pause from a resolution.
func (m *Issues) Snooze(ctx context.Context, actx *attribution.Context, id string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("snooze requires a positive duration")
	}
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionSnooze)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		until := now.Add(d)
		is.State = types.IssueSnoozed
		is.SnoozedAt = &now
		is.SnoozedBy = actx.EffectiveActor()
		is.SnoozeUntil = &until
		if err := tx.UpdateIssue(ctx, actx, is); err != nil {
			return err
		}
		return archiveItemsForIssue(ctx, tx, actx, is.ID, types.ReasonIssueSnoozedDirectly)
	})
}

// Unsnooze returns a snoozed issue to surfaced ahead of its timer. The timer
// path in the sweep package performs the identical transition.
func (m *Issues) Unsnooze(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionUnsnooze)
		if err != nil {
			return err
		}
		is.State = types.IssueSurfaced
		is.SnoozeUntil = nil
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Submit moves an addressing issue to awaiting_resolution.
func (m *Issues) Submit(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionSubmit)
		if err != nil {
			return err
		}
		is.State = types.IssueAwaitingResolution
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Resolve performs the two-step resolution atomically: the conceptual
// "resolved" hop is recorded in the audit log, and the persisted state goes
// straight to regression_watch with a watch deadline. "resolved" is never
// observable in the issues table, only in the audit stream. Inbox items
// still pointing at the issue are archived with reason issue_resolved.
func (m *Issues) Resolve(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionResolve)
		if err != nil {
			return err
		}
		now := timeutil.Now()

		resolved := *is
		resolved.State = types.IssueResolved
		resolved.ResolvedAt = &now
		resolved.ResolvedBy = actx.EffectiveActor()
		if err := tx.AppendAudit(ctx, actx, &types.AuditEntry{
			TableName:  "issues",
			Op:         types.OpUpdate,
			RowID:      is.ID,
			BeforeJSON: issueJSON(is),
			AfterJSON:  issueJSON(&resolved),
		}); err != nil {
			return err
		}

		until := now.Add(m.watchWindow)
		is.State = types.IssueRegressionWatch
		is.ResolvedAt = &now
		is.ResolvedBy = actx.EffectiveActor()
		is.RegressionWatchUntil = &until
		if err := tx.UpdateIssue(ctx, actx, is); err != nil {
			return err
		}
		return archiveItemsForIssue(ctx, tx, actx, is.ID, types.ReasonIssueResolved)
	})
}

// Escalate raises severity one notch, capped at critical, without changing
// state. At the cap the flag and audit row are still written so repeated
// escalation attempts remain visible.
func (m *Issues) Escalate(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := tx.GetIssue(ctx, id)
		if err != nil {
			return err
		}
		if is.State == types.IssueClosed {
			return m.reject(is, ActionEscalate)
		}
		now := timeutil.Now()
		is.Severity = is.Severity.Escalated()
		is.Escalated = true
		is.EscalatedAt = &now
		is.EscalatedBy = actx.EffectiveActor()
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Surface is the system transition from detected once the aggregation
// threshold is reached.
func (m *Issues) Surface(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionSurface)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		is.State = types.IssueSurfaced
		is.SurfacedAt = &now
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// Close is the system transition out of regression_watch when the deadline
// passes with no recurrence. Lingering inbox items are archived with reason
// issue_closed.
func (m *Issues) Close(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionClose)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		is.State = types.IssueClosed
		is.ClosedAt = &now
		if err := tx.UpdateIssue(ctx, actx, is); err != nil {
			return err
		}
		return archiveItemsForIssue(ctx, tx, actx, is.ID, types.ReasonIssueClosed)
	})
}

// Regress is the system transition out of regression_watch when the
// underlying condition recurs. The issue re-enters the active flow with the
// same action set as surfaced.
func (m *Issues) Regress(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		is, err := m.require(ctx, tx, id, ActionRegress)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		is.State = types.IssueRegressed
		is.RegressedAt = &now
		return tx.UpdateIssue(ctx, actx, is)
	})
}

// archiveItemsForIssue soft-terminates every non-terminal inbox item that
// points at the issue, tagging each with the given resolution reason. Runs
// inside the caller's transaction.
func archiveItemsForIssue(ctx context.Context, tx storage.Transaction, actx *attribution.Context, issueID, reason string) error {
	items, err := tx.ListInboxItems(ctx, types.InboxFilter{IssueID: issueID})
	if err != nil {
		return err
	}
	now := timeutil.Now()
	for _, it := range items {
		if it.IsTerminal() {
			continue
		}
		it.State = types.ItemLinkedToIssue
		it.ResolvedAt = &now
		it.ResolvedIssueID = issueID
		it.ResolutionReason = reason
		it.SnoozeUntil = nil
		if err := tx.UpdateInboxItem(ctx, actx, it); err != nil {
			return err
		}
	}
	return nil
}

func issueJSON(is *types.Issue) string {
	cp := *is
	cp.TrustDegraded = false
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Sprintf(`{"id":%q}`, is.ID)
	}
	return string(raw)
}
