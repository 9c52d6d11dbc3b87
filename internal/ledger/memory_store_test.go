package ledger

import (
	"errors"
	"testing"
)

func TestInMemoryStore_RecordsAndHeads(t *testing.T) {
	s := NewInMemoryStore()

	key := KeyRecord{KeyID: "kid", PublicKey: []byte("pub"), CreatedAt: "now"}
	if err := s.PutKey(key); err != nil {
		t.Fatalf("put key: %v", err)
	}
	if got, ok := s.GetKey("kid"); !ok || got.KeyID != "kid" {
		t.Fatalf("get key mismatch: ok=%v got=%+v", ok, got)
	}

	rec := Record{RecordID: "r1", ProjectID: "p1", RunID: "run-1", ChainIndex: 0, PayloadKind: PayloadEvidence, Payload: []byte(`{}`)}
	err := s.WithTx(func(tx Tx) error {
		if _, ok := tx.LastRecord("p1"); ok {
			t.Fatalf("expected no last record in empty store")
		}
		if err := tx.AppendRecord(rec); err != nil {
			return err
		}
		if got, ok := tx.LastRecord("p1"); !ok || got.RecordID != "r1" {
			t.Fatalf("tx should see pending record: ok=%v got=%+v", ok, got)
		}
		return tx.SetHead(Head{ProjectID: "p1", Hash: "sha256:h1", ChainIndex: 0})
	})
	if err != nil {
		t.Fatalf("withtx: %v", err)
	}

	if got, ok := s.LastRecord("p1"); !ok || got.RecordID != "r1" {
		t.Fatalf("last record mismatch: ok=%v got=%+v", ok, got)
	}
	if head, ok := s.Head("p1"); !ok || head.Hash != "sha256:h1" {
		t.Fatalf("head mismatch: ok=%v got=%+v", ok, head)
	}

	records, err := s.ListRecords("p1")
	if err != nil || len(records) != 1 {
		t.Fatalf("list records: err=%v len=%d", err, len(records))
	}
	byRun, err := s.ListRecordsByRun("run-1")
	if err != nil || len(byRun) != 1 {
		t.Fatalf("list by run: err=%v len=%d", err, len(byRun))
	}
	projects, err := s.ProjectIDs()
	if err != nil || len(projects) != 1 || projects[0] != "p1" {
		t.Fatalf("project ids: err=%v got=%v", err, projects)
	}
}

func TestInMemoryStore_TxRollback(t *testing.T) {
	s := NewInMemoryStore()

	boom := errors.New("boom")
	err := s.WithTx(func(tx Tx) error {
		if err := tx.AppendRecord(Record{RecordID: "r1", ProjectID: "p1"}); err != nil {
			return err
		}
		if err := tx.SetHead(Head{ProjectID: "p1", Hash: "h"}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, ok := s.LastRecord("p1"); ok {
		t.Fatalf("rolled-back record is visible")
	}
	if _, ok := s.Head("p1"); ok {
		t.Fatalf("rolled-back head is visible")
	}
}
