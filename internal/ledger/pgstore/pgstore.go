package pgstore

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/provara/provara/internal/ledger"
)

const Schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	seq           BIGSERIAL PRIMARY KEY,
	record_id     TEXT NOT NULL UNIQUE,
	project_id    TEXT NOT NULL,
	run_id        TEXT NOT NULL DEFAULT '',
	payload_kind  TEXT NOT NULL,
	payload_json  TEXT NOT NULL,
	payload_hash  TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	chain_index   INTEGER NOT NULL,
	sig           BYTEA NOT NULL,
	signed_by     TEXT NOT NULL,
	signed_at     TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	evidence_type TEXT NOT NULL DEFAULT '',
	UNIQUE (project_id, chain_index)
);

CREATE INDEX IF NOT EXISTS idx_ledger_records_project ON ledger_records (project_id, seq);
CREATE INDEX IF NOT EXISTS idx_ledger_records_run ON ledger_records (run_id, seq);

CREATE TABLE IF NOT EXISTS chain_heads (
	project_id  TEXT PRIMARY KEY,
	head_hash   TEXT NOT NULL,
	head_index  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signer_keys (
	key_id      TEXT PRIMARY KEY,
	public_key  BYTEA NOT NULL,
	created_at  TEXT NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// OpenPostgres connects, applies the schema and re-verifies every
// project chain before serving records, mirroring the sqlite store's
// persistence contract.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db)
	if err := s.ApplySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.verifyAllChains(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ApplySchema() error {
	_, err := s.db.Exec(Schema)
	return err
}

func (s *Store) verifyAllChains() error {
	projects, err := s.ProjectIDs()
	if err != nil {
		return err
	}

	lookup := func(keyID string) (ed25519.PublicKey, bool) {
		key, ok := s.GetKey(keyID)
		if !ok {
			return nil, false
		}
		return ed25519.PublicKey(key.PublicKey), true
	}

	for _, projectID := range projects {
		records, err := s.ListRecords(projectID)
		if err != nil {
			return err
		}
		head, haveHead := s.Head(projectID)
		report := ledger.VerifyRecords(projectID, records, head, haveHead, lookup)
		if !report.Valid {
			return &ledger.IntegrityError{
				ProjectID:  projectID,
				ChainIndex: report.Checked,
				Reason:     fmt.Sprintf("chain verification failed on load: %s", report.Err),
			}
		}
	}
	return nil
}

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutKey(key ledger.KeyRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutKey(key) })
}

func (s *Store) GetKey(keyID string) (ledger.KeyRecord, bool) {
	return getKey(s.db.QueryRow, keyID)
}

func (s *Store) LastRecord(projectID string) (ledger.Record, bool) {
	return lastRecord(s.db.QueryRow, projectID)
}

func (s *Store) Head(projectID string) (ledger.Head, bool) {
	return head(s.db.QueryRow, projectID)
}

func (s *Store) ListRecords(projectID string) ([]ledger.Record, error) {
	rows, err := s.db.Query(selectRecords+` WHERE project_id = $1 ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *Store) ListRecordsByRun(runID string) ([]ledger.Record, error) {
	rows, err := s.db.Query(selectRecords+` WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *Store) ProjectIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT project_id FROM ledger_records GROUP BY project_id ORDER BY MIN(seq) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return nil, err
		}
		out = append(out, projectID)
	}
	return out, rows.Err()
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) AppendRecord(rec ledger.Record) error {
	_, err := t.tx.Exec(`INSERT INTO ledger_records
(record_id, project_id, run_id, payload_kind, payload_json, payload_hash, previous_hash, chain_index, sig, signed_by, signed_at, created_at, source, evidence_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.RecordID, rec.ProjectID, rec.RunID, rec.PayloadKind, string(rec.Payload), rec.PayloadHash,
		rec.PreviousHash, rec.ChainIndex, rec.Sig, rec.SignedBy, rec.SignedAt, rec.CreatedAt,
		rec.Source, rec.EvidenceType)
	return err
}

func (t *Tx) LastRecord(projectID string) (ledger.Record, bool) {
	return lastRecord(t.tx.QueryRow, projectID)
}

func (t *Tx) SetHead(h ledger.Head) error {
	_, err := t.tx.Exec(`INSERT INTO chain_heads (project_id, head_hash, head_index) VALUES ($1, $2, $3)
ON CONFLICT (project_id) DO UPDATE SET head_hash = excluded.head_hash, head_index = excluded.head_index`,
		h.ProjectID, h.Hash, h.ChainIndex)
	return err
}

func (t *Tx) Head(projectID string) (ledger.Head, bool) {
	return head(t.tx.QueryRow, projectID)
}

func (t *Tx) PutKey(key ledger.KeyRecord) error {
	_, err := t.tx.Exec(`INSERT INTO signer_keys (key_id, public_key, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key_id) DO NOTHING`,
		key.KeyID, key.PublicKey, key.CreatedAt)
	return err
}

func (t *Tx) GetKey(keyID string) (ledger.KeyRecord, bool) {
	return getKey(t.tx.QueryRow, keyID)
}

const selectRecords = `SELECT record_id, project_id, run_id, payload_kind, payload_json, payload_hash, previous_hash, chain_index, sig, signed_by, signed_at, created_at, source, evidence_type
FROM ledger_records`

type queryRowFn func(query string, args ...any) *sql.Row

func lastRecord(queryRow queryRowFn, projectID string) (ledger.Record, bool) {
	row := queryRow(selectRecords+` WHERE project_id = $1 ORDER BY chain_index DESC LIMIT 1`, projectID)
	rec, err := scanRecord(row.Scan)
	if err != nil {
		return ledger.Record{}, false
	}
	return rec, true
}

func head(queryRow queryRowFn, projectID string) (ledger.Head, bool) {
	h := ledger.Head{ProjectID: projectID}
	row := queryRow(`SELECT head_hash, head_index FROM chain_heads WHERE project_id = $1`, projectID)
	if err := row.Scan(&h.Hash, &h.ChainIndex); err != nil {
		return ledger.Head{}, false
	}
	return h, true
}

func getKey(queryRow queryRowFn, keyID string) (ledger.KeyRecord, bool) {
	var rec ledger.KeyRecord
	row := queryRow(`SELECT key_id, public_key, created_at FROM signer_keys WHERE key_id = $1`, keyID)
	if err := row.Scan(&rec.KeyID, &rec.PublicKey, &rec.CreatedAt); err != nil {
		return ledger.KeyRecord{}, false
	}
	return rec, true
}

func scanRecord(scan func(dest ...any) error) (ledger.Record, error) {
	var rec ledger.Record
	var payload string
	if err := scan(&rec.RecordID, &rec.ProjectID, &rec.RunID, &rec.PayloadKind, &payload, &rec.PayloadHash,
		&rec.PreviousHash, &rec.ChainIndex, &rec.Sig, &rec.SignedBy, &rec.SignedAt, &rec.CreatedAt,
		&rec.Source, &rec.EvidenceType); err != nil {
		return ledger.Record{}, err
	}
	rec.Payload = []byte(payload)
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]ledger.Record, error) {
	defer rows.Close()

	out := []ledger.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
