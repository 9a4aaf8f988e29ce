package session

import (
	"context"
	"sync"
	"time"
)

// Store 活跃与近期结束会话的注册表。
type Store interface {
	Get(ctx context.Context, id string) (*Runner, error)
	Save(ctx context.Context, r *Runner) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Runner, error)
}

// InMemoryStore 是一个基于内存的会话注册表。
// 注意：重启即丢会话；多实例部署需要会话粘滞。
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Runner
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]*Runner)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Runner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *InMemoryStore) Save(_ context.Context, r *Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[r.ID()] = r
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Runner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Runner, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	return out, nil
}

// expired 已结束且超过保留时长的会话。
func expired(r *Runner, now time.Time, retention time.Duration) bool {
	if !r.Ended() {
		return false
	}
	endedAt := r.Snapshot().EndedAt
	return !endedAt.IsZero() && now.Sub(endedAt) >= retention
}
