package report

import (
	"context"
	"sort"
	"sync"

	"storyteller/server/internal/model"
)

// MemoryStore 内存实现，重启即丢数据。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Report)}
}

func (s *MemoryStore) Save(_ context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[r.SessionID] = clone(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[sessionID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return clone(r), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Report, error) {
	s.mu.RLock()
	out := make([]Report, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, clone(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(r Report) Report {
	r.Transcript = append([]model.TranscriptEntry(nil), r.Transcript...)
	alerts := make([]model.SafetyAlert, len(r.Alerts))
	for i, a := range r.Alerts {
		a.Keywords = append([]string(nil), a.Keywords...)
		alerts[i] = a
	}
	r.Alerts = alerts
	return r
}
