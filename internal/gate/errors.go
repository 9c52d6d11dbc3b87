package gate

import "fmt"

// UnknownValidatorError marks a configuration mistake: a gate check
// names a validator that was never registered. It is surfaced at
// evaluation time, never silently skipped.
type UnknownValidatorError struct {
	Name string
}

func (e *UnknownValidatorError) Error() string {
	return fmt.Sprintf("unknown validator: %s", e.Name)
}

type UnknownGateError struct {
	GateID string
}

func (e *UnknownGateError) Error() string {
	return fmt.Sprintf("unknown gate: %s", e.GateID)
}
