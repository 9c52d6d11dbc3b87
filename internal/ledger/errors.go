package ledger

import (
	"errors"
	"fmt"
)

var ErrMissingProjectID = errors.New("project_id is required")

// IntegrityError reports a chain consistency failure. It is fatal: the
// caller must halt writes for the project and investigate, never retry
// past it.
type IntegrityError struct {
	ProjectID  string
	ChainIndex int
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity: project %s index %d: %s", e.ProjectID, e.ChainIndex, e.Reason)
}
