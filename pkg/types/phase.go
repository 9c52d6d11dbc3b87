package types

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDiscovery      Phase = "discovery"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
	PhaseSecurityReview Phase = "security_review"
	PhaseRelease        Phase = "release"
	PhaseReleased       Phase = "released"
	PhaseFailed         Phase = "failed"
)

type StateTransition struct {
	From        Phase    `json:"from"`
	To          Phase    `json:"to"`
	Event       string   `json:"event"`
	Actor       string   `json:"actor,omitempty"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

type ParallelStatus string

const (
	ParallelActive ParallelStatus = "active"
	ParallelPaused ParallelStatus = "paused"
	ParallelError  ParallelStatus = "error"
)

// ParallelState is an always-on monitor tracked alongside the primary
// phase. It is refreshed by topic-matching events and never gates a
// transition.
type ParallelState struct {
	Name        string         `json:"name"`
	Status      ParallelStatus `json:"status"`
	LastCheckAt string         `json:"last_check_at,omitempty"`
}
