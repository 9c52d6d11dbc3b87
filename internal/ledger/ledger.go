package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

// Signer signs record digests. *signer.Signer satisfies it.
type Signer interface {
	KeyID() string
	SignDigest(digest []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// Ledger is the per-project append-only chain of signed records. Appends
// for one project are serialized through a per-project lock; appends to
// different projects proceed independently. Reads see whole records
// only: append is compute-then-commit inside a store transaction.
type Ledger struct {
	store  Store
	signer Signer

	mu       sync.Mutex
	projects map[string]*projectChain
}

type projectChain struct {
	mu    sync.Mutex
	known bool
	hash  string
	index int
}

var nowFn = func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func New(store Store, s Signer) *Ledger {
	return &Ledger{
		store:    store,
		signer:   s,
		projects: make(map[string]*projectChain),
	}
}

// Filter narrows List results. Zero fields match everything. From and To
// are inclusive RFC 3339 bounds compared against the record timestamp.
type Filter struct {
	Source string
	Type   types.EvidenceType
	From   string
	To     string
}

// AppendEvidence chains signed evidence onto the project ledger.
func (l *Ledger) AppendEvidence(signed types.SignedEvidence) (Record, error) {
	if signed.ProjectID == "" {
		return Record{}, ErrMissingProjectID
	}
	createdAt := signed.CreatedAt
	if createdAt == "" {
		createdAt = nowFn()
	}
	return l.append(recordInput{
		projectID:    signed.ProjectID,
		runID:        signed.RunID,
		kind:         PayloadEvidence,
		payload:      evidencePayloadView(signed),
		source:       signed.Source,
		evidenceType: string(signed.Type),
		createdAt:    createdAt,
	})
}

// AppendAudit chains an audit event (transition, gate evaluation,
// refusal) onto the project ledger.
func (l *Ledger) AppendAudit(projectID, runID string, event types.AuditEvent) (Record, error) {
	if projectID == "" {
		return Record{}, ErrMissingProjectID
	}
	return l.append(recordInput{
		projectID: projectID,
		runID:     runID,
		kind:      PayloadAudit,
		payload:   auditPayloadView(event),
		source:    event.Actor,
		createdAt: nowFn(),
	})
}

type recordInput struct {
	projectID    string
	runID        string
	kind         string
	payload      map[string]any
	source       string
	evidenceType string
	createdAt    string
}

func (l *Ledger) append(in recordInput) (Record, error) {
	payloadBytes, err := crypto.Canonicalize(in.payload)
	if err != nil {
		return Record{}, err
	}
	payloadHash := crypto.DigestWithPrefix(payloadBytes)

	chain := l.chain(in.projectID)
	chain.mu.Lock()
	defer chain.mu.Unlock()

	var out Record
	var outHash string
	err = l.store.WithTx(func(tx Tx) error {
		last, haveLast := tx.LastRecord(in.projectID)
		head, haveHead := tx.Head(in.projectID)
		if haveLast != haveHead {
			return &IntegrityError{ProjectID: in.projectID, Reason: "record/head divergence in store"}
		}

		prevHash := GenesisHash
		index := 0
		if haveLast {
			lastHash, err := RecordHash(last)
			if err != nil {
				return err
			}
			if lastHash != head.Hash || last.ChainIndex != head.ChainIndex {
				return &IntegrityError{
					ProjectID:  in.projectID,
					ChainIndex: last.ChainIndex,
					Reason:     "stored head does not match last record",
				}
			}
			prevHash = lastHash
			index = last.ChainIndex + 1
		}

		// The cached head must agree with what the store returned; a
		// mismatch means another writer or partial corruption touched
		// the chain since our last append.
		if chain.known && (chain.hash != prevHash || chain.index != index-1) {
			return &IntegrityError{
				ProjectID:  in.projectID,
				ChainIndex: index,
				Reason:     "chain advanced outside this ledger instance",
			}
		}

		rec := Record{
			RecordID:     uuid.NewString(),
			ProjectID:    in.projectID,
			RunID:        in.runID,
			PayloadKind:  in.kind,
			Payload:      payloadBytes,
			PayloadHash:  payloadHash,
			PreviousHash: prevHash,
			ChainIndex:   index,
			CreatedAt:    in.createdAt,
			Source:       in.source,
			EvidenceType: in.evidenceType,
		}

		digest, err := signingDigest(rec)
		if err != nil {
			return err
		}
		sig, err := l.signer.SignDigest(digest)
		if err != nil {
			return err
		}
		rec.Sig = sig
		rec.SignedBy = l.signer.KeyID()
		rec.SignedAt = nowFn()

		if _, ok := tx.GetKey(rec.SignedBy); !ok {
			if err := tx.PutKey(KeyRecord{
				KeyID:     rec.SignedBy,
				PublicKey: l.signer.PublicKey(),
				CreatedAt: rec.SignedAt,
			}); err != nil {
				return err
			}
		}

		if err := tx.AppendRecord(rec); err != nil {
			return err
		}
		hash, err := RecordHash(rec)
		if err != nil {
			return err
		}
		if err := tx.SetHead(Head{ProjectID: in.projectID, Hash: hash, ChainIndex: index}); err != nil {
			return err
		}

		out = rec
		outHash = hash
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	chain.known = true
	chain.hash = outHash
	chain.index = out.ChainIndex
	return out, nil
}

func (l *Ledger) chain(projectID string) *projectChain {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain, ok := l.projects[projectID]
	if !ok {
		chain = &projectChain{}
		l.projects[projectID] = chain
	}
	return chain
}

// List returns a project's records in append order, optionally filtered
// by source, evidence type and inclusive timestamp range. Insertion
// order is authoritative even when timestamps are out of order.
func (l *Ledger) List(projectID string, filter *Filter) ([]Record, error) {
	records, err := l.store.ListRecords(projectID)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return records, nil
	}

	out := []Record{}
	for _, rec := range records {
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matchesFilter(rec Record, filter *Filter) bool {
	if filter.Source != "" && rec.Source != filter.Source {
		return false
	}
	if filter.Type != "" && rec.EvidenceType != string(filter.Type) {
		return false
	}
	if filter.From != "" || filter.To != "" {
		ts, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
		if err != nil {
			return false
		}
		if filter.From != "" {
			from, err := time.Parse(time.RFC3339Nano, filter.From)
			if err != nil || ts.Before(from) {
				return false
			}
		}
		if filter.To != "" {
			to, err := time.Parse(time.RFC3339Nano, filter.To)
			if err != nil || ts.After(to) {
				return false
			}
		}
	}
	return true
}

// FindByRun returns records across all projects sharing a run ID, each
// project's subset in that project's insertion order.
func (l *Ledger) FindByRun(runID string) ([]Record, error) {
	return l.store.ListRecordsByRun(runID)
}

// VerifyChain recomputes every hash, linkage and signature for a
// project chain and checks the stored head against the last record.
func (l *Ledger) VerifyChain(projectID string) ChainReport {
	records, err := l.store.ListRecords(projectID)
	if err != nil {
		return ChainReport{Err: err.Error()}
	}
	head, haveHead := l.store.Head(projectID)
	return VerifyRecords(projectID, records, head, haveHead, l.keyLookup())
}

func (l *Ledger) keyLookup() KeyLookup {
	return func(keyID string) (ed25519.PublicKey, bool) {
		key, ok := l.store.GetKey(keyID)
		if !ok {
			return nil, false
		}
		return ed25519.PublicKey(key.PublicKey), true
	}
}

// Manifest is the audit handoff format: the full chain with hashes and
// signatures verbatim, suitable for independent re-verification.
type Manifest struct {
	ProjectID   string   `json:"project_id"`
	RecordCount int      `json:"record_count"`
	ChainValid  bool     `json:"chain_valid"`
	Records     []Record `json:"records"`
}

func (l *Ledger) Export(projectID string) (Manifest, error) {
	records, err := l.store.ListRecords(projectID)
	if err != nil {
		return Manifest{}, err
	}
	report := l.VerifyChain(projectID)
	return Manifest{
		ProjectID:   projectID,
		RecordCount: len(records),
		ChainValid:  report.Valid,
		Records:     records,
	}, nil
}

// Evidence decodes a project's evidence payloads in insertion order,
// for gate evaluation over a ledger snapshot.
func (l *Ledger) Evidence(projectID string) ([]types.SignedEvidence, error) {
	records, err := l.store.ListRecords(projectID)
	if err != nil {
		return nil, err
	}

	out := []types.SignedEvidence{}
	for _, rec := range records {
		if rec.PayloadKind != PayloadEvidence {
			continue
		}
		var signed types.SignedEvidence
		if err := json.Unmarshal(rec.Payload, &signed); err != nil {
			return nil, err
		}
		out = append(out, signed)
	}
	return out, nil
}
