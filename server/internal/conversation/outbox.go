package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyteller/server/internal/metrics"
)

const (
	defaultOutboxCapacity = 16
	defaultSendTimeout    = 5 * time.Second
)

// OutboxOptions Outbox 参数。
type OutboxOptions struct {
	Capacity int
	// Timeout 单条消息的发送超时。
	Timeout time.Duration
	Logger  zerolog.Logger
}

type outbound struct {
	conversationID string
	message        string
}

// Outbox 在独立协程里按顺序把消息发给远端会话，Send 从不阻塞。
//
// 队列满或已关闭时消息被丢弃。Close 取消正在进行的发送、丢弃未发出的消息并等待协程退出。
// 发送协程在第一条消息到达时才启动。
type Outbox struct {
	provider Provider
	opts     OutboxOptions
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	queue   chan outbound
	started bool
	closed  bool
}

func NewOutbox(provider Provider, opts OutboxOptions) *Outbox {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultOutboxCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		provider: provider,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "outbox").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		queue:    make(chan outbound, opts.Capacity),
	}
}

// Send 排队一条消息。返回 false 表示消息被丢弃。
func (o *Outbox) Send(conversationID, message string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	if !o.started {
		o.started = true
		go o.run()
	}
	select {
	case o.queue <- outbound{conversationID: conversationID, message: message}:
		return true
	default:
		metrics.MessagesDropped.Inc()
		return false
	}
}

// Close 停止发送。可重复调用。
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	started := o.started
	close(o.queue)
	o.mu.Unlock()

	o.cancel()
	if started {
		<-o.done
	}
}

func (o *Outbox) run() {
	defer close(o.done)

	for msg := range o.queue {
		if o.ctx.Err() != nil {
			metrics.MessagesDropped.Inc()
			continue
		}
		ctx, cancel := context.WithTimeout(o.ctx, o.opts.Timeout)
		began := time.Now()
		err := o.provider.SendMessage(ctx, msg.conversationID, msg.message)
		cancel()
		metrics.ConversationLatency.WithLabelValues("message").Observe(time.Since(began).Seconds())
		if err != nil {
			o.log.Warn().Err(err).Str("conversation_id", msg.conversationID).Msg("send message failed")
		}
	}
}
