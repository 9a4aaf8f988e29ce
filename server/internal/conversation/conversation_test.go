package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTavusCreateConversation 场景：请求体带上人设上下文与会话属性，响应字段正确解析。
func TestTavusCreateConversation(t *testing.T) {
	var got createConversationBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/conversations", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"conversation_id":"c1","replica_id":"r1","status":"active","conversation_url":"https://tavus.daily.co/c1"}`))
	}))
	defer srv.Close()

	c := NewTavusClient(srv.URL, "k", 0)
	conv, err := c.CreateConversation(context.Background(), Request{
		ReplicaID:           "r1",
		Context:             "be kind",
		MaxDurationSeconds:  600,
		ParticipantLeftSec:  30,
		EnableTranscription: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, "https://tavus.daily.co/c1", conv.URL)

	assert.Equal(t, "r1", got.ReplicaID)
	assert.Equal(t, "StoryTeller Session", got.ConversationName)
	assert.Equal(t, "be kind", got.ConversationalContext)
	assert.Equal(t, 600, got.Properties.MaxCallDuration)
	assert.Equal(t, 30, got.Properties.ParticipantLeftTimeout)
	assert.True(t, got.Properties.EnableTranscription)
	assert.False(t, got.Properties.EnableRecording)
}

// TestTavusCreateConversationDataEnvelope 响应包在 data 里时同样可用。
func TestTavusCreateConversationDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"conversation_id":"c2","status":"active"}}`))
	}))
	defer srv.Close()

	conv, err := NewTavusClient(srv.URL, "k", 0).CreateConversation(context.Background(), Request{ReplicaID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "c2", conv.ID)
}

// TestTavusAPIError 非 2xx 返回 APIError，保留状态码与截断后的 body。
func TestTavusAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	_, err := NewTavusClient(srv.URL, "bad", 0).CreateConversation(context.Background(), Request{ReplicaID: "r"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "invalid key")
}

func TestTavusEndAndMessages(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v2/replicas":
			_, _ = w.Write([]byte(`{"data":[{"replica_id":"r1","replica_name":"Friendly Fox","status":"ready"}]}`))
		case "/v2/conversations/c1/transcript":
			_, _ = w.Write([]byte(`{"data":[{"role":"user","content":"hi"}]}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewTavusClient(srv.URL, "k", 0)
	ctx := context.Background()

	replicas, err := c.ListReplicas(ctx)
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, "Friendly Fox", replicas[0].Name)

	lines, err := c.GetTranscript(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "hi", lines[0].Content)

	require.NoError(t, c.SendMessage(ctx, "c1", "hello"))
	require.NoError(t, c.EndConversation(ctx, "c1"))

	assert.Equal(t, []string{
		"GET /v2/replicas",
		"GET /v2/conversations/c1/transcript",
		"POST /v2/conversations/c1/messages",
		"DELETE /v2/conversations/c1",
	}, calls)
}

func TestTavusRequiresKey(t *testing.T) {
	c := &TavusClient{BaseURL: "http://127.0.0.1:0"}
	_, err := c.ListReplicas(context.Background())
	require.Error(t, err)
}

func TestStubLifecycle(t *testing.T) {
	s := NewStub(nil)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, Request{ReplicaID: "stub-storyteller-fox", Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, "stub-conv-1", conv.ID)
	assert.Equal(t, 1, s.Active())

	require.NoError(t, s.SendMessage(ctx, conv.ID, "hello"))
	lines, err := s.GetTranscript(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	require.NoError(t, s.EndConversation(ctx, conv.ID))
	assert.Equal(t, 0, s.Active())
	assert.ErrorIs(t, s.EndConversation(ctx, conv.ID), ErrUnknownConversation)

	s.FailCreate = errors.New("boom")
	_, err = s.CreateConversation(ctx, Request{})
	assert.EqualError(t, err, "boom")
}

func TestPickReplica(t *testing.T) {
	replicas, _ := NewStub(nil).ListReplicas(context.Background())

	assert.Equal(t, "stub-storyteller-owl", PickReplica(replicas, "wise", "fallback"))
	assert.Equal(t, "stub-storyteller-fox", PickReplica(replicas, "friendly", "fallback"))
	assert.Equal(t, "stub-storyteller-owl", PickReplica(replicas, "calm", "fallback"))
	assert.Equal(t, "stub-storyteller-fox", PickReplica(replicas, "pirate", "fallback"))
	assert.Equal(t, "stub-storyteller-fox", PickReplica(replicas, "", "fallback"))
	assert.Equal(t, "fallback", PickReplica(nil, "wise", "fallback"))
}

func TestNewProvider(t *testing.T) {
	p, err := New(Options{Kind: ProviderStub})
	require.NoError(t, err)
	assert.IsType(t, &Stub{}, p)

	_, err = New(Options{Kind: ProviderTavus})
	assert.Error(t, err)

	p, err = New(Options{Kind: ProviderTavus, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTavusURL, p.(*TavusClient).BaseURL)

	_, err = New(Options{Kind: "zoom"})
	assert.Error(t, err)
}
