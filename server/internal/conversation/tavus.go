package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTavusURL Tavus API 地址。
const DefaultTavusURL = "https://tavusapi.com"

// APIError 远端返回非 2xx。
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tavus %s: status=%d body=%s", e.Op, e.Status, e.Body)
}

// TavusClient 封装 Tavus 会话接口。
// API Key 只在服务端使用，前端只拿到 conversation_url。
type TavusClient struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
}

func NewTavusClient(baseURL, apiKey string, timeout time.Duration) *TavusClient {
	if baseURL == "" {
		baseURL = DefaultTavusURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TavusClient{
		HTTPClient: &http.Client{Timeout: timeout},
		APIKey:     apiKey,
		BaseURL:    baseURL,
	}
}

type createConversationBody struct {
	ReplicaID             string                 `json:"replica_id"`
	ConversationName      string                 `json:"conversation_name,omitempty"`
	ConversationalContext string                 `json:"conversational_context,omitempty"`
	CustomGreeting        string                 `json:"custom_greeting,omitempty"`
	CallbackURL           string                 `json:"callback_url,omitempty"`
	Properties            conversationProperties `json:"properties"`
}

type conversationProperties struct {
	MaxCallDuration          int  `json:"max_call_duration,omitempty"`
	ParticipantLeftTimeout   int  `json:"participant_left_timeout,omitempty"`
	ParticipantAbsentTimeout int  `json:"participant_absent_timeout,omitempty"`
	EnableRecording          bool `json:"enable_recording"`
	EnableTranscription      bool `json:"enable_transcription"`
}

// CreateConversation POST /v2/conversations
func (c *TavusClient) CreateConversation(ctx context.Context, req Request) (Conversation, error) {
	if req.ReplicaID == "" {
		return Conversation{}, errors.New("replica id is empty")
	}
	name := req.Name
	if name == "" {
		name = "StoryTeller Session"
	}
	body := createConversationBody{
		ReplicaID:             req.ReplicaID,
		ConversationName:      name,
		ConversationalContext: req.Context,
		CustomGreeting:        req.Greeting,
		CallbackURL:           req.CallbackURL,
		Properties: conversationProperties{
			MaxCallDuration:          req.MaxDurationSeconds,
			ParticipantLeftTimeout:   req.ParticipantLeftSec,
			ParticipantAbsentTimeout: req.ParticipantAbsentSec,
			EnableRecording:          req.EnableRecording,
			EnableTranscription:      req.EnableTranscription,
		},
	}

	// 兼容两种响应形态：顶层字段，或包在 data 里。
	var out struct {
		Conversation
		Data *Conversation `json:"data"`
	}
	if err := c.do(ctx, "create conversation", http.MethodPost, "/v2/conversations", body, &out); err != nil {
		return Conversation{}, err
	}
	conv := out.Conversation
	if out.Data != nil {
		conv = *out.Data
	}
	if conv.ID == "" {
		return Conversation{}, errors.New("tavus returned empty conversation_id")
	}
	return conv, nil
}

// EndConversation DELETE /v2/conversations/{id}
func (c *TavusClient) EndConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, "end conversation", http.MethodDelete, "/v2/conversations/"+url.PathEscape(conversationID), nil, nil)
}

// GetTranscript GET /v2/conversations/{id}/transcript
func (c *TavusClient) GetTranscript(ctx context.Context, conversationID string) ([]Utterance, error) {
	var out struct {
		Data []Utterance `json:"data"`
	}
	path := "/v2/conversations/" + url.PathEscape(conversationID) + "/transcript"
	if err := c.do(ctx, "get transcript", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SendMessage POST /v2/conversations/{id}/messages
func (c *TavusClient) SendMessage(ctx context.Context, conversationID, message string) error {
	path := "/v2/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.do(ctx, "send message", http.MethodPost, path, map[string]string{"message": message}, nil)
}

// ListReplicas GET /v2/replicas
func (c *TavusClient) ListReplicas(ctx context.Context) ([]Replica, error) {
	var out struct {
		Data []Replica `json:"data"`
	}
	if err := c.do(ctx, "list replicas", http.MethodGet, "/v2/replicas", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *TavusClient) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.APIKey == "" {
		return errors.New("TAVUS_API_KEY is empty")
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("new %s request: %w", op, err)
	}
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tavus %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 只读取少量错误信息，避免把整段 body 透传给上层。
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(limited)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
