// Package lifecycle implements the issue and inbox item state machines.
//
// All mutations run inside a single storage transaction per operation: the
// state change, any archival of related records, and the audit rows commit
// together or not at all. Transition validity is enforced by fixed adjacency
// and dispatch tables built at package init, not by runtime string dispatch.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TransitionError reports an action that is not available in the record's
// current state. Recoverable: nothing was mutated.
type TransitionError struct {
	Entity    string // "issue" or "inbox item"
	ID        string
	State     string
	Action    string
	Available []string
}

func (e *TransitionError) Error() string {
	avail := "none"
	if len(e.Available) > 0 {
		sorted := append([]string(nil), e.Available...)
		sort.Strings(sorted)
		avail = strings.Join(sorted, ", ")
	}
	return fmt.Sprintf("action %q not available for %s %s in state %q (available: %s)",
		e.Action, e.Entity, e.ID, e.State, avail)
}

// IsTransitionError reports whether err wraps a transition rejection.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
