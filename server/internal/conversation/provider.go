package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request 创建远端数字人会话的请求。
type Request struct {
	ReplicaID            string
	Name                 string
	Context              string
	Greeting             string
	CallbackURL          string
	MaxDurationSeconds   int
	ParticipantLeftSec   int
	ParticipantAbsentSec int
	EnableRecording      bool
	EnableTranscription  bool
}

// Conversation 远端会话资源。
type Conversation struct {
	ID        string    `json:"conversation_id"`
	Name      string    `json:"conversation_name,omitempty"`
	ReplicaID string    `json:"replica_id"`
	Status    string    `json:"status"`
	URL       string    `json:"conversation_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Persona 数字人的人设描述。
type Persona struct {
	Personality   string `json:"personality"`
	VoiceStyle    string `json:"voice_style"`
	SpeakingStyle string `json:"speaking_style"`
}

// Replica 可用的数字人形象。
type Replica struct {
	ID      string   `json:"replica_id"`
	Name    string   `json:"replica_name"`
	Status  string   `json:"status"`
	Persona *Persona `json:"persona,omitempty"`
}

// Utterance 远端会话转写的一行。
type Utterance struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Provider 远端数字人/视频会话服务的边界。会话控制器只负责开启与结束，不依赖其内部。
type Provider interface {
	CreateConversation(ctx context.Context, req Request) (Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
	GetTranscript(ctx context.Context, conversationID string) ([]Utterance, error)
	SendMessage(ctx context.Context, conversationID, message string) error
	ListReplicas(ctx context.Context) ([]Replica, error)
}

const (
	ProviderTavus = "tavus"
	ProviderStub  = "stub"
)

// Options 构造 Provider 的配置。
type Options struct {
	Kind    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New 按配置选择实现。
func New(opts Options) (Provider, error) {
	switch opts.Kind {
	case ProviderTavus:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("tavus provider requires an api key")
		}
		return NewTavusClient(opts.BaseURL, opts.APIKey, opts.Timeout), nil
	case "", ProviderStub:
		return NewStub(nil), nil
	default:
		return nil, fmt.Errorf("unknown conversation provider: %s", opts.Kind)
	}
}

// PickReplica 选择与模板人设匹配的数字人；没有匹配时取第一个；列表为空时使用 fallback。
func PickReplica(replicas []Replica, personaHint, fallback string) string {
	hint := strings.ToLower(strings.TrimSpace(personaHint))
	if hint != "" {
		for _, r := range replicas {
			if strings.Contains(strings.ToLower(r.Name), hint) {
				return r.ID
			}
			if r.Persona != nil && strings.Contains(strings.ToLower(r.Persona.Personality), hint) {
				return r.ID
			}
		}
	}
	if len(replicas) > 0 {
		return replicas[0].ID
	}
	return fallback
}
