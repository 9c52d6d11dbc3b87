package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/provara/provara/internal/crypto"
)

// ChainReport is the outcome of walking a project chain. Verification
// failures are reported as data, not errors, so audits can proceed.
type ChainReport struct {
	Valid   bool   `json:"valid"`
	Checked int    `json:"checked"`
	Err     string `json:"error,omitempty"`
}

// KeyLookup resolves a signing key ID to its public key.
type KeyLookup func(keyID string) (ed25519.PublicKey, bool)

// VerifyRecords walks records in chain order, recomputing every payload
// hash, linkage hash and signature, and finally compares the stored head
// against the recomputed hash of the last record. Checked counts records
// verified before the first failure; for a valid chain it equals
// len(records).
func VerifyRecords(projectID string, records []Record, head Head, haveHead bool, lookup KeyLookup) ChainReport {
	prev := GenesisHash

	for i, rec := range records {
		if rec.ChainIndex != i {
			return invalidReport(i, fmt.Sprintf("chain index %d at position %d", rec.ChainIndex, i))
		}
		if rec.ProjectID != projectID {
			return invalidReport(i, fmt.Sprintf("record %s belongs to project %s", rec.RecordID, rec.ProjectID))
		}
		if crypto.DigestWithPrefix(rec.Payload) != rec.PayloadHash {
			return invalidReport(i, "payload hash mismatch")
		}
		if rec.PreviousHash != prev {
			return invalidReport(i, "chain linkage broken")
		}

		digest, err := signingDigest(rec)
		if err != nil {
			return invalidReport(i, fmt.Sprintf("signing view: %v", err))
		}
		pub, ok := lookup(rec.SignedBy)
		if !ok {
			return invalidReport(i, fmt.Sprintf("unknown signing key %s", rec.SignedBy))
		}
		if ok, err := crypto.VerifyEd25519(pub, digest, rec.Sig); err != nil || !ok {
			return invalidReport(i, "record signature invalid")
		}

		hash, err := RecordHash(rec)
		if err != nil {
			return invalidReport(i, fmt.Sprintf("record hash: %v", err))
		}
		prev = hash
	}

	if len(records) > 0 {
		if !haveHead {
			return ChainReport{Checked: len(records), Err: "chain head missing"}
		}
		if head.Hash != prev || head.ChainIndex != len(records)-1 {
			return ChainReport{Checked: len(records) - 1, Err: "chain head does not match last record"}
		}
	}

	return ChainReport{Valid: true, Checked: len(records)}
}

func invalidReport(index int, reason string) ChainReport {
	return ChainReport{Checked: index, Err: fmt.Sprintf("record %d: %s", index, reason)}
}
