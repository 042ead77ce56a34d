package verifierstore

import (
	"context"
	"sync"

	"verifyengine/internal/model"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.VerifierRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.VerifierRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, subjectID string) (model.VerifierRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[subjectID]
	return v, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, v model.VerifierRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[v.SubjectID] = v
	return nil
}

func (s *MemoryStore) IncrementConfirmations(ctx context.Context, subjectID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.records[subjectID]
	v.SubjectID = subjectID
	v.SuccessfulConfirmations += delta
	s.records[subjectID] = v
	return v.SuccessfulConfirmations, nil
}
