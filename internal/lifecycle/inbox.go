package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsline/triage/internal/attribution"
	"github.com/opsline/triage/internal/evidence"
	"github.com/opsline/triage/internal/idgen"
	"github.com/opsline/triage/internal/storage"
	"github.com/opsline/triage/internal/suppression"
	"github.com/opsline/triage/internal/timeutil"
	"github.com/opsline/triage/internal/types"
)

// InboxAction names an operator action on an inbox item.
type InboxAction string

// Inbox action constants
const (
	ItemActionTag     InboxAction = "tag"
	ItemActionAssign  InboxAction = "assign"
	ItemActionSnooze  InboxAction = "snooze"
	ItemActionDismiss InboxAction = "dismiss"
	ItemActionLink    InboxAction = "link"
	ItemActionCreate  InboxAction = "create"
	ItemActionSelect  InboxAction = "select"
)

// inboxActions is the type-dependent action table: what an operator can do
// with an item depends on what kind of thing it proposes, not just its state.
var inboxActions = map[types.InboxItemType][]InboxAction{
	types.ItemTypeIssue:         {ItemActionTag, ItemActionAssign, ItemActionSnooze, ItemActionDismiss},
	types.ItemTypeFlaggedSignal: {ItemActionTag, ItemActionAssign, ItemActionSnooze, ItemActionDismiss},
	types.ItemTypeOrphan:        {ItemActionLink, ItemActionCreate, ItemActionDismiss},
	types.ItemTypeAmbiguous:     {ItemActionSelect, ItemActionDismiss},
}

func actionAllowed(t types.InboxItemType, action InboxAction) bool {
	for _, a := range inboxActions[t] {
		if a == action {
			return true
		}
	}
	return false
}

// ActionsFor lists the operator actions valid for an item type. Items out
// of the proposed state accept none of them regardless of type.
func ActionsFor(t types.InboxItemType) []string {
	out := make([]string, 0, len(inboxActions[t]))
	for _, a := range inboxActions[t] {
		out = append(out, string(a))
	}
	return out
}

// Inbox drives inbox item transitions against the store.
type Inbox struct {
	store storage.Storage
}

// NewInbox returns an inbox lifecycle manager.
func NewInbox(store storage.Storage) *Inbox {
	return &Inbox{store: store}
}

// Proposal is a detector's request to surface a new inbox item.
type Proposal struct {
	Type     types.InboxItemType
	Severity types.Severity

	// Exactly one of these, matching Type.
	UnderlyingIssueID  string
	UnderlyingSignalID string

	ClientID     string
	BrandID      string
	EngagementID string
	SignalSource string
	SignalRule   string

	Evidence string
}

// Propose creates a new proposed inbox item, unless an active suppression
// rule covers the same condition class. The suppression check runs before
// anything is created: a dismissed class never produces new rows, not even
// short-lived ones.
func (m *Inbox) Propose(ctx context.Context, actx *attribution.Context, p Proposal) (*types.InboxItem, error) {
	if p.Severity == "" {
		p.Severity = types.SeverityMedium
	}
	// Evidence is validated at the front door: what detectors hand in must
	// already be a well-formed envelope. The degraded-read path exists for
	// legacy rows, not as a license to persist free text.
	if p.Evidence != "" {
		if _, perr := evidence.Parse(p.Evidence); perr != nil {
			return nil, fmt.Errorf("proposal evidence: %w", perr)
		}
	}
	item := &types.InboxItem{
		Type:               p.Type,
		State:              types.ItemProposed,
		Severity:           p.Severity,
		UnderlyingIssueID:  p.UnderlyingIssueID,
		UnderlyingSignalID: p.UnderlyingSignalID,
		ClientID:           p.ClientID,
		BrandID:            p.BrandID,
		EngagementID:       p.EngagementID,
		SignalSource:       p.SignalSource,
		SignalRule:         p.SignalRule,
		Evidence:           p.Evidence,
	}

	err := m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var underlying *types.Issue
		if item.Type == types.ItemTypeIssue {
			is, err := tx.GetIssue(ctx, item.UnderlyingIssueID)
			if err != nil {
				return err
			}
			underlying = is
		}
		key, err := suppression.KeyForItem(item, underlying)
		if err != nil {
			return err
		}
		on, err := tx.IsSuppressed(ctx, key, timeutil.Now())
		if err != nil {
			return err
		}
		if on {
			return fmt.Errorf("proposal for %s class %s: %w", item.Type, key, storage.ErrSuppressed)
		}

		id, err := newInboxID(ctx, tx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return tx.CreateInboxItem(ctx, actx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (m *Inbox) reject(it *types.InboxItem, action InboxAction) error {
	return &TransitionError{
		Entity:    "inbox item",
		ID:        it.ID,
		State:     string(it.State),
		Action:    string(action),
		Available: ActionsFor(it.Type),
	}
}

// require loads the item and checks the action is available: the item must
// still be proposed, and the action must be in its type's action set.
func (m *Inbox) require(ctx context.Context, tx storage.Transaction, id string, action InboxAction) (*types.InboxItem, error) {
	it, err := tx.GetInboxItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.State != types.ItemProposed || !actionAllowed(it.Type, action) {
		return nil, m.reject(it, action)
	}
	return it, nil
}

// Snooze pauses the item until now + d. Expiry (the sweep) returns it to
// proposed with resurfaced_at set and read_at cleared.
func (m *Inbox) Snooze(ctx context.Context, actx *attribution.Context, id string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("snooze requires a positive duration")
	}
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionSnooze)
		if err != nil {
			return err
		}
		until := timeutil.Now().Add(d)
		it.State = types.ItemSnoozed
		it.SnoozeUntil = &until
		return tx.UpdateInboxItem(ctx, actx, it)
	})
}

// Dismiss archives the item and suppresses its condition class. The three
// writes — suppression key onto the item, suppressed flag onto an underlying
// issue, rule insert — are one atomic unit; a failure at any step leaves no
// trace of the others.
func (m *Inbox) Dismiss(ctx context.Context, actx *attribution.Context, id, reason string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionDismiss)
		if err != nil {
			return err
		}

		var underlying *types.Issue
		if it.Type == types.ItemTypeIssue {
			underlying, err = tx.GetIssue(ctx, it.UnderlyingIssueID)
			if err != nil {
				return err
			}
		}
		key, err := suppression.KeyForItem(it, underlying)
		if err != nil {
			return err
		}

		now := timeutil.Now()
		it.State = types.ItemDismissed
		it.DismissedAt = &now
		it.DismissedBy = actx.EffectiveActor()
		it.DismissedReason = reason
		it.SuppressionKey = key
		it.ResolvedAt = &now
		it.ResolutionReason = types.ReasonDismissed
		if err := tx.UpdateInboxItem(ctx, actx, it); err != nil {
			return err
		}

		if underlying != nil {
			underlying.Suppressed = true
			underlying.SuppressedAt = &now
			underlying.SuppressedBy = actx.EffectiveActor()
			if err := tx.UpdateIssue(ctx, actx, underlying); err != nil {
				return err
			}
			if err := archiveSiblings(ctx, tx, actx, underlying.ID, it.ID); err != nil {
				return err
			}
		}

		_, err = tx.InsertSuppressionRule(ctx, actx, &types.SuppressionRule{
			SuppressionKey: key,
			ItemType:       it.Type,
			ExpiresAt:      now.Add(it.Type.SuppressionTTL()),
			Reason:         reason,
		})
		return err
	})
}

// Tag resolves the item to linked_to_issue. For signal-backed items a
// backing issue is created on the fly, already surfaced, inside the same
// transaction.
func (m *Inbox) Tag(ctx context.Context, actx *attribution.Context, id string, issueType types.IssueType, title string) (string, error) {
	var issueID string
	err := m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionTag)
		if err != nil {
			return err
		}
		issueID, err = resolveBackingIssue(ctx, tx, actx, it, issueType, title)
		if err != nil {
			return err
		}
		return linkItem(ctx, tx, actx, it, issueID)
	})
	return issueID, err
}

// Assign resolves the item like Tag and puts the backing issue into
// addressing under the named assignee.
func (m *Inbox) Assign(ctx context.Context, actx *attribution.Context, id, assignee string, issueType types.IssueType, title string) (string, error) {
	if assignee == "" {
		return "", fmt.Errorf("assign requires an assignee")
	}
	var issueID string
	err := m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionAssign)
		if err != nil {
			return err
		}
		issueID, err = resolveBackingIssue(ctx, tx, actx, it, issueType, title)
		if err != nil {
			return err
		}

		is, err := tx.GetIssue(ctx, issueID)
		if err != nil {
			return err
		}
		if !canTransition(is.State, types.IssueAddressing) {
			return &TransitionError{
				Entity:    "issue",
				ID:        is.ID,
				State:     string(is.State),
				Action:    string(ActionAssign),
				Available: availableIssueActions(is.State),
			}
		}
		now := timeutil.Now()
		is.State = types.IssueAddressing
		is.AssignedAt = &now
		is.AssignedTo = assignee
		if err := tx.UpdateIssue(ctx, actx, is); err != nil {
			return err
		}
		return linkItem(ctx, tx, actx, it, issueID)
	})
	return issueID, err
}

// Link resolves an orphan item against an existing issue.
func (m *Inbox) Link(ctx context.Context, actx *attribution.Context, id, issueID string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionLink)
		if err != nil {
			return err
		}
		if _, err := tx.GetIssue(ctx, issueID); err != nil {
			return err
		}
		return linkItem(ctx, tx, actx, it, issueID)
	})
}

// Create resolves an orphan item by creating a fresh issue for it.
func (m *Inbox) Create(ctx context.Context, actx *attribution.Context, id string, issueType types.IssueType, title string) (string, error) {
	var issueID string
	err := m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionCreate)
		if err != nil {
			return err
		}
		issueID, err = createBackingIssue(ctx, tx, actx, it, issueType, title)
		if err != nil {
			return err
		}
		return linkItem(ctx, tx, actx, it, issueID)
	})
	return issueID, err
}

// Select resolves an ambiguous item against one of its candidate issues.
// The chosen issue must be listed in the evidence payload's
// candidate_issue_ids; anything else is a transition rejection.
func (m *Inbox) Select(ctx context.Context, actx *attribution.Context, id, issueID string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := m.require(ctx, tx, id, ItemActionSelect)
		if err != nil {
			return err
		}
		candidates := candidateIssueIDs(it.Evidence)
		found := false
		for _, c := range candidates {
			if c == issueID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("issue %s is not a candidate for ambiguous item %s (candidates: %v)", issueID, it.ID, candidates)
		}
		if _, err := tx.GetIssue(ctx, issueID); err != nil {
			return err
		}
		return linkItem(ctx, tx, actx, it, issueID)
	})
}

// MarkRead records that an operator looked at the item. Feeds the "unread
// since resurfacing" computation downstream.
func (m *Inbox) MarkRead(ctx context.Context, actx *attribution.Context, id string) error {
	return m.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := tx.GetInboxItem(ctx, id)
		if err != nil {
			return err
		}
		now := timeutil.Now()
		it.ReadAt = &now
		return tx.UpdateInboxItem(ctx, actx, it)
	})
}

// linkItem terminates the item as linked_to_issue.
func linkItem(ctx context.Context, tx storage.Transaction, actx *attribution.Context, it *types.InboxItem, issueID string) error {
	now := timeutil.Now()
	it.State = types.ItemLinkedToIssue
	it.ResolvedAt = &now
	it.ResolvedIssueID = issueID
	it.ResolutionReason = types.ReasonLinked
	return tx.UpdateInboxItem(ctx, actx, it)
}

// resolveBackingIssue returns the item's underlying issue, creating one for
// signal-backed items.
func resolveBackingIssue(ctx context.Context, tx storage.Transaction, actx *attribution.Context, it *types.InboxItem, issueType types.IssueType, title string) (string, error) {
	if it.Type == types.ItemTypeIssue {
		return it.UnderlyingIssueID, nil
	}
	return createBackingIssue(ctx, tx, actx, it, issueType, title)
}

// createBackingIssue promotes a signal-backed item into a tracked issue,
// born surfaced: promotion is itself the act of surfacing.
func createBackingIssue(ctx context.Context, tx storage.Transaction, actx *attribution.Context, it *types.InboxItem, issueType types.IssueType, title string) (string, error) {
	if !issueType.IsValid() {
		return "", fmt.Errorf("promoting item %s requires a valid issue type, got %q", it.ID, issueType)
	}
	if title == "" {
		title = fmt.Sprintf("%s: %s", it.SignalSource, it.SignalRule)
	}
	now := timeutil.Now()
	is := &types.Issue{
		Type:           issueType,
		State:          types.IssueSurfaced,
		Severity:       it.Severity,
		Title:          title,
		ClientID:       it.ClientID,
		BrandID:        it.BrandID,
		EngagementID:   it.EngagementID,
		AggregationKey: signalAggregationKey(it),
		DetectedAt:     now,
		SurfacedAt:     &now,
		Evidence:       it.Evidence,
	}
	id, err := newIssueID(ctx, tx, is)
	if err != nil {
		return "", err
	}
	is.ID = id
	if err := tx.CreateIssue(ctx, actx, is); err != nil {
		return "", err
	}
	return id, nil
}

// archiveSiblings terminates other active items pointing at a suppressed
// issue with reason issue_suppressed, skipping the item being dismissed.
func archiveSiblings(ctx context.Context, tx storage.Transaction, actx *attribution.Context, issueID, dismissedID string) error {
	items, err := tx.ListInboxItems(ctx, types.InboxFilter{IssueID: issueID})
	if err != nil {
		return err
	}
	now := timeutil.Now()
	for _, sib := range items {
		if sib.ID == dismissedID || sib.IsTerminal() {
			continue
		}
		sib.State = types.ItemLinkedToIssue
		sib.ResolvedAt = &now
		sib.ResolvedIssueID = issueID
		sib.ResolutionReason = types.ReasonIssueSuppressed
		sib.SnoozeUntil = nil
		if err := tx.UpdateInboxItem(ctx, actx, sib); err != nil {
			return err
		}
	}
	return nil
}

// signalAggregationKey groups recurrences of the same signal class.
func signalAggregationKey(it *types.InboxItem) string {
	return fmt.Sprintf("%s/%s/%s/%s", it.ClientID, it.EngagementID, it.SignalSource, it.SignalRule)
}

// candidateIssueIDs extracts candidate_issue_ids from the evidence payload
// of an ambiguous item. Malformed evidence yields no candidates.
func candidateIssueIDs(raw string) []string {
	env, pi := evidence.Parse(raw)
	if pi != nil {
		return nil
	}
	vals, ok := env.Payload["candidate_issue_ids"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// newInboxID derives a collision-checked id for a new item.
func newInboxID(ctx context.Context, tx storage.Transaction, it *types.InboxItem) (string, error) {
	now := timeutil.Now()
	for nonce := 0; nonce < 10; nonce++ {
		id := idgen.New(idgen.InboxPrefix, now, nonce,
			string(it.Type), it.UnderlyingIssueID, it.UnderlyingSignalID, it.ClientID, it.EngagementID)
		_, err := tx.GetInboxItem(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not derive a unique inbox item id")
}

// newIssueID derives a collision-checked id for a new issue.
func newIssueID(ctx context.Context, tx storage.Transaction, is *types.Issue) (string, error) {
	now := timeutil.Now()
	for nonce := 0; nonce < 10; nonce++ {
		id := idgen.New(idgen.IssuePrefix, now, nonce,
			string(is.Type), is.Title, is.ClientID, is.EngagementID, is.AggregationKey)
		_, err := tx.GetIssue(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not derive a unique issue id")
}
