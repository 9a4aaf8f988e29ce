package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProvider 发送时挂起，直到 ctx 取消。
type blockingProvider struct {
	*Stub
	started chan struct{}
}

func (p *blockingProvider) SendMessage(ctx context.Context, _, _ string) error {
	p.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

// TestOutboxDeliversInOrder 消息按顺序送达，Close 之后不再接收。
func TestOutboxDeliversInOrder(t *testing.T) {
	stub := NewStub(nil)
	ctx := context.Background()
	conv, err := stub.CreateConversation(ctx, Request{ReplicaID: "r1"})
	require.NoError(t, err)

	out := NewOutbox(stub, OutboxOptions{Logger: zerolog.Nop()})
	require.True(t, out.Send(conv.ID, "one"))
	require.True(t, out.Send(conv.ID, "two"))

	require.Eventually(t, func() bool {
		lines, _ := stub.GetTranscript(ctx, conv.ID)
		return len(lines) == 2
	}, time.Second, 5*time.Millisecond)
	lines, _ := stub.GetTranscript(ctx, conv.ID)
	assert.Equal(t, "one", lines[0].Content)
	assert.Equal(t, "two", lines[1].Content)

	out.Close()
	out.Close()
	assert.False(t, out.Send(conv.ID, "three"))
}

// TestOutboxNeverBlocksCaller 远端挂起时 Send 立即返回，队列满则丢弃；Close 取消挂起的发送。
func TestOutboxNeverBlocksCaller(t *testing.T) {
	p := &blockingProvider{Stub: NewStub(nil), started: make(chan struct{}, 1)}
	out := NewOutbox(p, OutboxOptions{Capacity: 1, Timeout: time.Minute, Logger: zerolog.Nop()})

	require.True(t, out.Send("c1", "stalls"))
	select {
	case <-p.started:
	case <-time.After(time.Second):
		t.Fatal("send never started")
	}
	assert.True(t, out.Send("c1", "queued"))
	assert.False(t, out.Send("c1", "dropped"), "queue full")

	closed := make(chan struct{})
	go func() {
		out.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close must cancel the stalled send")
	}
}

func TestOutboxCloseWithoutSend(t *testing.T) {
	out := NewOutbox(NewStub(nil), OutboxOptions{})
	out.Close()
	assert.False(t, out.Send("c1", "late"))
}
