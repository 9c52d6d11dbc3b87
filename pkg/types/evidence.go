package types

type EvidenceType string

const (
	EvidenceTestReport EvidenceType = "test_report"
	EvidenceVulnReport EvidenceType = "vuln_report"
	EvidenceArtifact   EvidenceType = "artifact"
	EvidenceDecision   EvidenceType = "decision"
	EvidenceFile       EvidenceType = "file"
	EvidenceEvent      EvidenceType = "event"
)

// Evidence is an immutable fact submitted by a collaborator about a
// project run. Content is an opaque structured payload; validators parse
// it per evidence type.
type Evidence struct {
	EvidenceID string            `json:"evidence_id"`
	ProjectID  string            `json:"project_id"`
	RunID      string            `json:"run_id,omitempty"`
	Source     string            `json:"source"`
	Type       EvidenceType      `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Content    map[string]any    `json:"content,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SignedEvidence is evidence with its content hash and signature attached.
// ContentHash is authoritative for all later comparisons of Content.
type SignedEvidence struct {
	Evidence
	ContentHash string `json:"content_hash"`
	Sig         []byte `json:"sig"`
	SignedBy    string `json:"signed_by"`
	SignedAt    string `json:"signed_at"`
}

// AuditEvent records an actor performing an action, independent of any
// collaborator-submitted evidence. Transitions and gate evaluations are
// appended to the ledger as audit events.
type AuditEvent struct {
	Actor    string            `json:"actor"`
	Action   string            `json:"action"`
	Resource string            `json:"resource,omitempty"`
	Phase    string            `json:"phase,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
