package memory

import (
	"context"
	"fmt"
	"sync"
)

// ReportStore keeps archived reports in memory and returns pseudo URIs.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewReportStore creates a new in-memory report archive.
func NewReportStore() *ReportStore {
	return &ReportStore{data: make(map[string][]byte)}
}

// Put persists the blob and returns a memory:// URI.
func (s *ReportStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a stored blob copy, primarily for tests.
func (s *ReportStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
