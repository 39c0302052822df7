package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/bluehope/mace/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	records     map[string]model.VerificationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.records = make(map[string]model.VerificationRecord)
	return nil
}

func (s *MemoryStore) SaveVerification(_ context.Context, record model.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := record
	copied.Gradients = make([]model.GradientComparisonRecord, len(record.Gradients))
	copy(copied.Gradients, record.Gradients)
	s.records[record.ID] = copied
	return nil
}

func (s *MemoryStore) GetVerification(_ context.Context, id string) (model.VerificationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return model.VerificationRecord{}, false, nil
	}
	copied := record
	copied.Gradients = make([]model.GradientComparisonRecord, len(record.Gradients))
	copy(copied.Gradients, record.Gradients)
	return copied, true, nil
}

func (s *MemoryStore) ListVerifications(_ context.Context) ([]model.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.VerificationRecord, 0, len(s.records))
	for _, record := range s.records {
		copied := record
		copied.Gradients = make([]model.GradientComparisonRecord, len(record.Gradients))
		copy(copied.Gradients, record.Gradients)
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
