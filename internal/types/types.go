// Package types defines core data structures for the triage lifecycle core.
package types

import (
	"fmt"
	"time"
)

// InboxItem is a proposed unit of attention referencing exactly one
// underlying Issue or raw Signal.
type InboxItem struct {
	ID       string         `json:"id"`
	Type     InboxItemType  `json:"type"`
	State    InboxState     `json:"state"`
	Severity Severity       `json:"severity"`

	ProposedAt   time.Time  `json:"proposed_at"`
	ResurfacedAt *time.Time `json:"resurfaced_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	SnoozeUntil  *time.Time `json:"snooze_until,omitempty"`

	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`
	DismissedBy     string     `json:"dismissed_by,omitempty"`
	DismissedReason string     `json:"dismissed_reason,omitempty"`
	SuppressionKey  string     `json:"suppression_key,omitempty"`

	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedIssueID  string     `json:"resolved_issue_id,omitempty"`
	ResolutionReason string     `json:"resolution_reason,omitempty"`

	// Exactly one of these is set; which one is dictated by Type.
	UnderlyingIssueID  string `json:"underlying_issue_id,omitempty"`
	UnderlyingSignalID string `json:"underlying_signal_id,omitempty"`

	ClientID     string `json:"client_id,omitempty"`
	BrandID      string `json:"brand_id,omitempty"`
	EngagementID string `json:"engagement_id,omitempty"`

	// Signal scoping carried from the detector proposal; used for
	// suppression key computation on signal-backed items.
	SignalSource string `json:"signal_source,omitempty"`
	SignalRule   string `json:"signal_rule,omitempty"`

	Evidence string `json:"evidence,omitempty"` // envelope v1 JSON

	// TrustDegraded is set on read when the persisted evidence failed to
	// parse. Never persisted; see evidence.Parse.
	TrustDegraded bool `json:"trust_degraded,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the inbox item's structural invariants. The storage
// guard layer calls this on every insert and update, so violations abort
// the write regardless of which caller produced the record.
func (it *InboxItem) Validate() error {
	if !it.Type.IsValid() {
		return fmt.Errorf("invalid inbox item type: %s", it.Type)
	}
	if !it.State.IsValid() {
		return fmt.Errorf("invalid inbox item state: %s", it.State)
	}
	if !it.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", it.Severity)
	}

	// Exactly one underlying reference.
	hasIssue := it.UnderlyingIssueID != ""
	hasSignal := it.UnderlyingSignalID != ""
	if hasIssue == hasSignal {
		return fmt.Errorf("exactly one of underlying_issue_id/underlying_signal_id must be set")
	}
	// Type dictates which side is populated.
	if it.Type == ItemTypeIssue && !hasIssue {
		return fmt.Errorf("issue items must reference an underlying issue")
	}
	if it.Type != ItemTypeIssue && !hasSignal {
		return fmt.Errorf("%s items must reference an underlying signal", it.Type)
	}

	switch it.State {
	case ItemSnoozed:
		if it.SnoozeUntil == nil {
			return fmt.Errorf("snoozed items must have snooze_until")
		}
	case ItemDismissed:
		if it.ResolvedAt == nil {
			return fmt.Errorf("terminal items must have resolved_at")
		}
		if it.DismissedAt == nil || it.DismissedBy == "" || it.SuppressionKey == "" {
			return fmt.Errorf("dismissed items must have dismissed_at, dismissed_by and suppression_key")
		}
	case ItemLinkedToIssue:
		if it.ResolvedAt == nil {
			return fmt.Errorf("terminal items must have resolved_at")
		}
		if it.ResolvedIssueID == "" {
			return fmt.Errorf("linked items must have resolved_issue_id")
		}
	}
	return nil
}

// IsTerminal reports whether the item has reached a soft-terminal state.
// Terminal items are never destroyed, only archived in place.
func (it *InboxItem) IsTerminal() bool {
	return it.State == ItemDismissed || it.State == ItemLinkedToIssue
}

// UnreadSinceResurfacing reports whether the item resurfaced from a snooze
// and has not been read since. Downstream health scoring keys off this.
func (it *InboxItem) UnreadSinceResurfacing() bool {
	if it.ResurfacedAt == nil {
		return false
	}
	return it.ReadAt == nil || it.ReadAt.Before(*it.ResurfacedAt)
}

// InboxItemType categorizes what an inbox item proposes.
type InboxItemType string

// Inbox item type constants
const (
	ItemTypeIssue         InboxItemType = "issue"
	ItemTypeFlaggedSignal InboxItemType = "flagged_signal"
	ItemTypeOrphan        InboxItemType = "orphan"
	ItemTypeAmbiguous     InboxItemType = "ambiguous"
)

// IsValid checks if the inbox item type value is valid
func (t InboxItemType) IsValid() bool {
	switch t {
	case ItemTypeIssue, ItemTypeFlaggedSignal, ItemTypeOrphan, ItemTypeAmbiguous:
		return true
	}
	return false
}

// SuppressionTTL returns how long a dismissal of this item type keeps the
// underlying condition suppressed.
func (t InboxItemType) SuppressionTTL() time.Duration {
	switch t {
	case ItemTypeIssue:
		return 90 * 24 * time.Hour
	case ItemTypeOrphan:
		return 180 * 24 * time.Hour
	default: // flagged_signal, ambiguous
		return 30 * 24 * time.Hour
	}
}

// InboxState represents the current state of an inbox item
type InboxState string

// Inbox item state constants
const (
	ItemProposed      InboxState = "proposed"
	ItemSnoozed       InboxState = "snoozed"
	ItemDismissed     InboxState = "dismissed"
	ItemLinkedToIssue InboxState = "linked_to_issue"
)

// IsValid checks if the inbox state value is valid
func (s InboxState) IsValid() bool {
	switch s {
	case ItemProposed, ItemSnoozed, ItemDismissed, ItemLinkedToIssue:
		return true
	}
	return false
}

// Issue is a longer-lived tracked condition with regression monitoring.
type Issue struct {
	ID       string     `json:"id"`
	Type     IssueType  `json:"type"`
	State    IssueState `json:"state"`
	Severity Severity   `json:"severity"`
	Title    string     `json:"title"`

	ClientID     string `json:"client_id,omitempty"`
	BrandID      string `json:"brand_id,omitempty"`
	EngagementID string `json:"engagement_id,omitempty"`

	AggregationKey string `json:"aggregation_key,omitempty"`

	DetectedAt time.Time  `json:"detected_at"`
	SurfacedAt *time.Time `json:"surfaced_at,omitempty"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`

	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	AssignedTo string     `json:"assigned_to,omitempty"`

	SnoozedAt   *time.Time `json:"snoozed_at,omitempty"`
	SnoozedBy   string     `json:"snoozed_by,omitempty"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`

	Suppressed   bool       `json:"suppressed,omitempty"`
	SuppressedAt *time.Time `json:"suppressed_at,omitempty"`
	SuppressedBy string     `json:"suppressed_by,omitempty"`

	Escalated   bool       `json:"escalated,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	EscalatedBy string     `json:"escalated_by,omitempty"`

	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy           string     `json:"resolved_by,omitempty"`
	RegressionWatchUntil *time.Time `json:"regression_watch_until,omitempty"`
	RegressedAt          *time.Time `json:"regressed_at,omitempty"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`

	Evidence string `json:"evidence,omitempty"` // envelope v1 JSON

	// TrustDegraded is set on read when the persisted evidence failed to
	// parse. Never persisted.
	TrustDegraded bool `json:"trust_degraded,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the issue's structural invariants. Called by the storage
// guard layer on every insert and update.
func (i *Issue) Validate() error {
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.Type)
	}
	if !i.State.IsValid() {
		return fmt.Errorf("invalid issue state: %s", i.State)
	}
	// "resolved" is transient: the resolve action records it in the audit
	// log but transitions straight to regression_watch in the same write.
	if i.State == IssueResolved {
		return fmt.Errorf("state %q is transient and must never be persisted", IssueResolved)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}

	switch i.State {
	case IssueSnoozed:
		if i.SnoozeUntil == nil {
			return fmt.Errorf("snoozed issues must have snooze_until")
		}
	case IssueRegressionWatch:
		if i.ResolvedAt == nil || i.RegressionWatchUntil == nil {
			return fmt.Errorf("regression_watch issues must have resolved_at and regression_watch_until")
		}
	case IssueClosed:
		if i.ClosedAt == nil {
			return fmt.Errorf("closed issues must have closed_at")
		}
	case IssueRegressed:
		if i.RegressedAt == nil {
			return fmt.Errorf("regressed issues must have regressed_at")
		}
	}
	if i.State != IssueClosed && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issues cannot have closed_at")
	}
	return nil
}

// IssueType categorizes the kind of tracked condition
type IssueType string

// Issue type constants
const (
	IssueFinancial        IssueType = "financial"
	IssueScheduleDelivery IssueType = "schedule_delivery"
	IssueCommunication    IssueType = "communication"
	IssueRisk             IssueType = "risk"
)

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case IssueFinancial, IssueScheduleDelivery, IssueCommunication, IssueRisk:
		return true
	}
	return false
}

// IssueState represents the current lifecycle state of an issue
type IssueState string

// Issue state constants. IssueResolved is transient: it appears in the
// audit log but is never persisted as the state column.
const (
	IssueDetected           IssueState = "detected"
	IssueSurfaced           IssueState = "surfaced"
	IssueSnoozed            IssueState = "snoozed"
	IssueAcknowledged       IssueState = "acknowledged"
	IssueAddressing         IssueState = "addressing"
	IssueAwaitingResolution IssueState = "awaiting_resolution"
	IssueResolved           IssueState = "resolved"
	IssueRegressionWatch    IssueState = "regression_watch"
	IssueClosed             IssueState = "closed"
	IssueRegressed          IssueState = "regressed"
)

// IsValid checks if the issue state value is valid
func (s IssueState) IsValid() bool {
	switch s {
	case IssueDetected, IssueSurfaced, IssueSnoozed, IssueAcknowledged,
		IssueAddressing, IssueAwaitingResolution, IssueResolved,
		IssueRegressionWatch, IssueClosed, IssueRegressed:
		return true
	}
	return false
}

// IsTerminal reports whether the state has no outgoing transitions.
func (s IssueState) IsTerminal() bool {
	return s == IssueClosed
}

// Severity is an ordered enum: critical > high > medium > low > info.
type Severity string

// Severity constants
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities for comparison and escalation.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric order of the severity (info=0 .. critical=4).
func (s Severity) Rank() int {
	return severityRank[s]
}

// Escalated returns the severity one notch higher, capped at critical.
func (s Severity) Escalated() Severity {
	switch s {
	case SeverityInfo:
		return SeverityLow
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Resolution reason constants. Set on archived inbox items so downstream
// health scoring can distinguish how the underlying condition went away.
const (
	ReasonDismissed             = "dismissed"
	ReasonLinked                = "linked"
	ReasonIssueResolved         = "issue_resolved"
	ReasonIssueClosed           = "issue_closed"
	ReasonIssueSnoozedDirectly  = "issue_snoozed_directly"
	ReasonIssueSuppressed       = "issue_suppressed"
)

// SuppressionRule is a dismissal fingerprint that blocks re-proposal of the
// same underlying condition until it expires.
type SuppressionRule struct {
	ID             int64         `json:"id"`
	SuppressionKey string        `json:"suppression_key"`
	ItemType       InboxItemType `json:"item_type"`
	CreatedBy      string        `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Reason         string        `json:"reason,omitempty"`
}

// Expired reports whether the rule is past its expiry at the given instant.
func (r *SuppressionRule) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AuditOp is the operation recorded by an audit entry.
type AuditOp string

// Audit operation constants
const (
	OpInsert AuditOp = "INSERT"
	OpUpdate AuditOp = "UPDATE"
	OpDelete AuditOp = "DELETE"
)

// IsValid checks if the audit op value is valid
func (o AuditOp) IsValid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// AuditEntry is one append-only record of a protected-table write.
type AuditEntry struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	Actor      string    `json:"actor"`
	RequestID  string    `json:"request_id"`
	Source     string    `json:"source"`
	BuildTag   string    `json:"build_tag,omitempty"`
	TableName  string    `json:"table_name"`
	Op         AuditOp   `json:"op"`
	RowID      string    `json:"row_id"`
	BeforeJSON string    `json:"before_json,omitempty"`
	AfterJSON  string    `json:"after_json,omitempty"`
}

// InboxFilter filters inbox item queries.
type InboxFilter struct {
	State        *InboxState
	Type         *InboxItemType
	Severity     *Severity
	ClientID     string
	EngagementID string
	IssueID      string // items whose underlying issue matches
	UnreadOnly   bool
	Limit        int
}

// IssueFilter filters issue queries.
type IssueFilter struct {
	State        *IssueState
	Type         *IssueType
	Severity     *Severity
	ClientID     string
	EngagementID string
	AssignedTo   string
	Suppressed   *bool
	Limit        int
}
