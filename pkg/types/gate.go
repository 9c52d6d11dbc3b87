package types

type GateStatus string

const (
	GatePassed GateStatus = "passed"
	GateFailed GateStatus = "failed"
	GateError  GateStatus = "error"
)

type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckMissing CheckStatus = "missing"
	CheckError   CheckStatus = "error"
)

// Gate is a declarative policy unit: required checks evaluated against
// ledger evidence before a phase transition is allowed.
type Gate struct {
	GateID   string      `yaml:"gate_id" json:"gate_id"`
	Name     string      `yaml:"name" json:"name"`
	Phase    string      `yaml:"phase" json:"phase"`
	Blocking bool        `yaml:"blocking" json:"blocking"`
	Checks   []GateCheck `yaml:"checks" json:"checks"`
}

type GateCheck struct {
	CheckID      string         `yaml:"check_id" json:"check_id"`
	EvidenceType EvidenceType   `yaml:"evidence_type" json:"evidence_type"`
	Validator    string         `yaml:"validator,omitempty" json:"validator,omitempty"`
	Params       map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	MustMatch    string         `yaml:"must_match,omitempty" json:"must_match,omitempty"`
}

type CheckResult struct {
	CheckID string      `json:"check_id"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// GateResult is immutable once produced; re-evaluating a gate yields a
// new result rather than mutating a prior one.
type GateResult struct {
	GateID      string        `json:"gate_id"`
	Phase       string        `json:"phase"`
	Status      GateStatus    `json:"status"`
	Checks      []CheckResult `json:"checks"`
	EvidenceIDs []string      `json:"evidence_ids,omitempty"`
	CreatedAt   string        `json:"created_at"`
}
