package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownConversation 桩中不存在该会话。
var ErrUnknownConversation = errors.New("unknown conversation")

// Stub 内存实现，用于本地开发与测试。行为确定：会话 ID 按创建顺序递增。
// 可通过 FailCreate/FailEnd 模拟远端故障。
type Stub struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int
	active   map[string]Conversation
	messages map[string][]Utterance
	replicas []Replica

	FailCreate error
	FailEnd    error
}

// NewStub 创建桩；replicas 为空时使用两个内置形象。
func NewStub(replicas []Replica) *Stub {
	if len(replicas) == 0 {
		replicas = []Replica{
			{
				ID:     "stub-storyteller-fox",
				Name:   "Friendly Fox",
				Status: "ready",
				Persona: &Persona{
					Personality:   "Warm, encouraging, friendly and playful. Loves adventure stories.",
					VoiceStyle:    "Gentle and animated",
					SpeakingStyle: "Simple language, engaging questions",
				},
			},
			{
				ID:     "stub-storyteller-owl",
				Name:   "Wise Owl",
				Status: "ready",
				Persona: &Persona{
					Personality:   "Calm, wise, and educational. Perfect for bedtime and learning.",
					VoiceStyle:    "Soothing and measured",
					SpeakingStyle: "Patient explanations",
				},
			},
		}
	}
	return &Stub{
		now:      time.Now,
		active:   make(map[string]Conversation),
		messages: make(map[string][]Utterance),
		replicas: replicas,
	}
}

func (s *Stub) CreateConversation(_ context.Context, req Request) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return Conversation{}, s.FailCreate
	}
	s.seq++
	id := fmt.Sprintf("stub-conv-%d", s.seq)
	conv := Conversation{
		ID:        id,
		Name:      req.Name,
		ReplicaID: req.ReplicaID,
		Status:    "active",
		URL:       "stub://conversation/" + id,
		CreatedAt: s.now(),
	}
	s.active[id] = conv
	return conv, nil
}

func (s *Stub) EndConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailEnd != nil {
		return s.FailEnd
	}
	if _, ok := s.active[conversationID]; !ok {
		return ErrUnknownConversation
	}
	delete(s.active, conversationID)
	return nil
}

func (s *Stub) GetTranscript(_ context.Context, conversationID string) ([]Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Utterance, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *Stub) SendMessage(_ context.Context, conversationID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[conversationID]; !ok {
		return ErrUnknownConversation
	}
	s.messages[conversationID] = append(s.messages[conversationID], Utterance{
		Role:      "system",
		Content:   message,
		Timestamp: s.now(),
	})
	return nil
}

func (s *Stub) ListReplicas(context.Context) ([]Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Replica(nil), s.replicas...), nil
}

// Active 当前未结束的会话数。
func (s *Stub) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Lookup 查询未结束的会话。
func (s *Stub) Lookup(conversationID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.active[conversationID]
	return conv, ok
}
