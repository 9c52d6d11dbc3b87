package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

const (
	PayloadEvidence = "evidence"
	PayloadAudit    = "audit_event"
)

// GenesisHash is the fixed previous_hash of the first record in every
// project chain.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Record is the chained, signed unit of durability. It wraps either a
// SignedEvidence or an AuditEvent payload as canonical JSON. Records are
// created once via append and never mutated or deleted.
type Record struct {
	RecordID     string          `json:"record_id"`
	ProjectID    string          `json:"project_id"`
	RunID        string          `json:"run_id,omitempty"`
	PayloadKind  string          `json:"payload_kind"`
	Payload      json.RawMessage `json:"payload"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	ChainIndex   int             `json:"chain_index"`
	Sig          []byte          `json:"sig"`
	SignedBy     string          `json:"signed_by"`
	SignedAt     string          `json:"signed_at"`
	CreatedAt    string          `json:"created_at"`
	Source       string          `json:"source,omitempty"`
	EvidenceType string          `json:"evidence_type,omitempty"`
}

// RecordHash is the deterministic hash of a record over all of its
// fields. record[i].PreviousHash must equal RecordHash(record[i-1]), and
// the chain head stored per project must equal RecordHash of the last
// record, so mutating any field of any record is detectable.
func RecordHash(rec Record) (string, error) {
	view := map[string]any{
		"record_id":     rec.RecordID,
		"project_id":    rec.ProjectID,
		"run_id":        rec.RunID,
		"payload_kind":  rec.PayloadKind,
		"payload_hash":  rec.PayloadHash,
		"previous_hash": rec.PreviousHash,
		"chain_index":   rec.ChainIndex,
		"sig":           base64.StdEncoding.EncodeToString(rec.Sig),
		"signed_by":     rec.SignedBy,
		"signed_at":     rec.SignedAt,
		"created_at":    rec.CreatedAt,
		"source":        rec.Source,
		"evidence_type": rec.EvidenceType,
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

// signingDigest is the digest the record signature covers: record_id +
// payload_hash + previous_hash.
func signingDigest(rec Record) ([]byte, error) {
	view := map[string]any{
		"record_id":     rec.RecordID,
		"payload_hash":  rec.PayloadHash,
		"previous_hash": rec.PreviousHash,
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return nil, err
	}
	return crypto.DigestBytes(canonical), nil
}

// evidencePayloadView mirrors the SignedEvidence JSON shape so payload
// bytes round-trip back into types.SignedEvidence.
func evidencePayloadView(signed types.SignedEvidence) map[string]any {
	return map[string]any{
		"evidence_id":  signed.EvidenceID,
		"project_id":   signed.ProjectID,
		"run_id":       signed.RunID,
		"source":       signed.Source,
		"type":         string(signed.Type),
		"created_at":   signed.CreatedAt,
		"content":      signed.Content,
		"metadata":     signed.Metadata,
		"content_hash": signed.ContentHash,
		"sig":          base64.StdEncoding.EncodeToString(signed.Sig),
		"signed_by":    signed.SignedBy,
		"signed_at":    signed.SignedAt,
	}
}

// DecodeAudit decodes the payload of an audit record.
func (r Record) DecodeAudit() (types.AuditEvent, error) {
	if r.PayloadKind != PayloadAudit {
		return types.AuditEvent{}, fmt.Errorf("record %s is not an audit record", r.RecordID)
	}
	var event types.AuditEvent
	if err := json.Unmarshal(r.Payload, &event); err != nil {
		return types.AuditEvent{}, err
	}
	return event, nil
}

func auditPayloadView(event types.AuditEvent) map[string]any {
	return map[string]any{
		"actor":    event.Actor,
		"action":   event.Action,
		"resource": event.Resource,
		"phase":    event.Phase,
		"metadata": event.Metadata,
	}
}
