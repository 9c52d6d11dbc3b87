package phase

import (
	"fmt"
	"strings"

	"github.com/provara/provara/pkg/types"
)

// InvalidTransitionError rejects an event with no entry in the current
// phase's transition table. The phase is left unchanged.
type InvalidTransitionError struct {
	From  types.Phase
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("no transition for event %s from phase %s", e.Event, e.From)
}

// PolicyViolationError refuses a transition because a blocking gate did
// not pass. It carries the full gate result so callers can report which
// checks failed or were missing rather than a bare denial.
type PolicyViolationError struct {
	GateID string
	Phase  types.Phase
	Result types.GateResult
}

func (e *PolicyViolationError) Error() string {
	parts := make([]string, 0, len(e.Result.Checks))
	for _, c := range e.Result.Checks {
		if c.Status == types.CheckPassed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s (%s)", c.CheckID, c.Status, c.Message))
	}
	detail := strings.Join(parts, "; ")
	if detail == "" {
		detail = string(e.Result.Status)
	}
	return fmt.Sprintf("gate %s blocked transition to %s: %s", e.GateID, e.Phase, detail)
}
