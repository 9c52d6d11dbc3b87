package ledger

import "sync"

// InMemoryStore keeps all records in a single append-ordered slice, so
// per-project and per-run listings preserve insertion order for free.
type InMemoryStore struct {
	mu sync.Mutex

	records []Record
	heads   map[string]Head
	keys    map[string]KeyRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		heads: make(map[string]Head),
		keys:  make(map[string]KeyRecord),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.records = append(s.records, tx.pendingRecords...)
	for _, head := range tx.pendingHeads {
		s.heads[head.ProjectID] = head
	}
	for _, key := range tx.pendingKeys {
		s.keys[key.KeyID] = key
	}
	return nil
}

func (s *InMemoryStore) PutKey(key KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.KeyID] = key
	return nil
}

func (s *InMemoryStore) GetKey(keyID string) (KeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	return key, ok
}

func (s *InMemoryStore) LastRecord(projectID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lastRecordLocked(s.records, projectID)
}

func (s *InMemoryStore) Head(projectID string) (Head, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	head, ok := s.heads[projectID]
	return head, ok
}

func (s *InMemoryStore) ListRecords(projectID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Record{}
	for _, rec := range s.records {
		if rec.ProjectID == projectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListRecordsByRun(runID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Record{}
	for _, rec := range s.records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ProjectIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range s.records {
		if _, ok := seen[rec.ProjectID]; ok {
			continue
		}
		seen[rec.ProjectID] = struct{}{}
		out = append(out, rec.ProjectID)
	}
	return out, nil
}

// memTx buffers writes so a failed append leaves the store untouched.
type memTx struct {
	store *InMemoryStore

	pendingRecords []Record
	pendingHeads   []Head
	pendingKeys    []KeyRecord
}

func (t *memTx) AppendRecord(rec Record) error {
	t.pendingRecords = append(t.pendingRecords, rec)
	return nil
}

func (t *memTx) LastRecord(projectID string) (Record, bool) {
	for i := len(t.pendingRecords) - 1; i >= 0; i-- {
		if t.pendingRecords[i].ProjectID == projectID {
			return t.pendingRecords[i], true
		}
	}
	return lastRecordLocked(t.store.records, projectID)
}

func (t *memTx) SetHead(head Head) error {
	t.pendingHeads = append(t.pendingHeads, head)
	return nil
}

func (t *memTx) Head(projectID string) (Head, bool) {
	for i := len(t.pendingHeads) - 1; i >= 0; i-- {
		if t.pendingHeads[i].ProjectID == projectID {
			return t.pendingHeads[i], true
		}
	}
	head, ok := t.store.heads[projectID]
	return head, ok
}

func (t *memTx) PutKey(key KeyRecord) error {
	t.pendingKeys = append(t.pendingKeys, key)
	return nil
}

func (t *memTx) GetKey(keyID string) (KeyRecord, bool) {
	for i := len(t.pendingKeys) - 1; i >= 0; i-- {
		if t.pendingKeys[i].KeyID == keyID {
			return t.pendingKeys[i], true
		}
	}
	key, ok := t.store.keys[keyID]
	return key, ok
}

func lastRecordLocked(records []Record, projectID string) (Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ProjectID == projectID {
			return records[i], true
		}
	}
	return Record{}, false
}
