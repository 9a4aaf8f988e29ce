package timeline

import (
	"context"
	"sync"

	"storyteller/server/internal/model"
)

// InMemoryStore 是一个基于内存的 Timeline 存储实现。
type InMemoryStore struct {
	mu       sync.RWMutex
	events   map[string][]model.Event
	seq      map[string]int64
	eventIDs map[string]map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:   make(map[string][]model.Event),
		seq:      make(map[string]int64),
		eventIDs: make(map[string]map[string]int64),
	}
}

// Append 追加事件并分配 seq。写入的是副本，evt.Seq/SessionID 会被回填。
func (s *InMemoryStore) Append(_ context.Context, sessionID string, evt *model.Event) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.EventID != "" {
		if seq, ok := s.eventIDs[sessionID][evt.EventID]; ok {
			evt.Seq = seq
			return seq, true, nil
		}
	}

	s.seq[sessionID]++
	seq := s.seq[sessionID]
	evt.Seq = seq
	evt.SessionID = sessionID

	eventCopy := *evt
	if evt.Emotion != nil {
		sample := *evt.Emotion
		eventCopy.Emotion = &sample
	}
	s.events[sessionID] = append(s.events[sessionID], eventCopy)

	if evt.EventID != "" {
		if s.eventIDs[sessionID] == nil {
			s.eventIDs[sessionID] = make(map[string]int64)
		}
		s.eventIDs[sessionID][evt.EventID] = seq
	}

	return seq, false, nil
}

// List 返回切片副本，避免调用方修改内部数据。
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[sessionID]
	out := make([]model.Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *InMemoryStore) Retract(_ context.Context, sessionID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[sessionID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Seq != seq {
			continue
		}
		if id := events[i].EventID; id != "" {
			delete(s.eventIDs[sessionID], id)
		}
		s.events[sessionID] = append(events[:i:i], events[i+1:]...)
		return nil
	}
	return nil
}

func (s *InMemoryStore) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, sessionID)
	delete(s.seq, sessionID)
	delete(s.eventIDs, sessionID)
	return nil
}
