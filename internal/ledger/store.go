package ledger

// Store persists chained records, per-project chain heads and signer
// public keys. Implementations must return records in append (insertion)
// order; chain linkage depends on it.
type Store interface {
	WithTx(fn func(Tx) error) error

	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)

	LastRecord(projectID string) (Record, bool)
	Head(projectID string) (Head, bool)
	ListRecords(projectID string) ([]Record, error)
	ListRecordsByRun(runID string) ([]Record, error)
	ProjectIDs() ([]string, error)
}

// Tx is the transactional view used by append: reading the last record,
// writing the new one and moving the head must be atomic.
type Tx interface {
	AppendRecord(rec Record) error
	LastRecord(projectID string) (Record, bool)

	SetHead(head Head) error
	Head(projectID string) (Head, bool)

	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)
}

// KeyRecord holds a signer public key so stored chains can be verified
// independently of the signing process.
type KeyRecord struct {
	KeyID     string
	PublicKey []byte
	CreatedAt string
}

// Head tracks the hash and index of the last record in a project chain.
// It is what append compares against before linking a new record.
type Head struct {
	ProjectID  string
	Hash       string
	ChainIndex int
}
