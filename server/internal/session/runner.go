package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"storyteller/server/internal/emotion"
	"storyteller/server/internal/metrics"
	"storyteller/server/internal/model"
	"storyteller/server/internal/orchestrator"
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrEnded      = errors.New("session ended")
	ErrQueueFull  = errors.New("session event queue full")
	ErrBadEvent   = errors.New("invalid session event")
	ErrNotStarted = errors.New("session not started")
	// ErrNotQueued 事件未进入队列（与具体原因一起返回），调用方可以安全重试。
	ErrNotQueued = errors.New("event not queued")
)

const (
	// 队列容量：超过此值的事件将被丢弃（背压控制）
	defaultQueueCapacity = 100
	// 单个事件的处理超时
	defaultEventTimeout = 10 * time.Second
	defaultTickInterval = time.Second
)

// RunnerOptions Runner 参数。
type RunnerOptions struct {
	TickInterval  time.Duration
	QueueCapacity int
	// Source 服务端情绪来源；nil 表示由客户端推送。
	Source emotion.Source
	Logger zerolog.Logger
	Now    func() time.Time
}

// Runner 为单个会话提供串行事件处理（Actor Model）。
//
// 控制器的全部状态只在 loop 协程中读写：发言、情绪采样、选择、停止与 1 秒计时都经由同一个 select。
// 读取方通过 Snapshot 获得每次事件处理后发布的不可变快照。
type Runner struct {
	id     string
	ctrl   *orchestrator.Controller
	events chan *queuedEvent
	opts   RunnerOptions
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	started  atomic.Bool
	ended    atomic.Bool
	snapshot atomic.Pointer[model.SessionSnapshot]

	subMu sync.Mutex
	subs  map[chan model.SessionSnapshot]struct{}

	totalEvents     atomic.Int64
	processedEvents atomic.Int64
	droppedEvents   atomic.Int64
}

type queuedEvent struct {
	evt       model.Event
	timestamp time.Time
	resultCh  chan error // 用于同步等待结果（可选）
}

// NewRunner 创建 Runner，Start 之前不会启动任何协程。
func NewRunner(id string, ctrl *orchestrator.Controller, opts RunnerOptions) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		id:     id,
		ctrl:   ctrl,
		events: make(chan *queuedEvent, opts.QueueCapacity),
		opts:   opts,
		log:    opts.Logger.With().Str("component", "session").Str("session_id", id).Logger(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[chan model.SessionSnapshot]struct{}),
	}
	r.publish()
	return r
}

// ID 会话 ID。
func (r *Runner) ID() string { return r.id }

// Start 同步创建远端会话，成功后启动事件循环与情绪来源。
// 创建失败时会话已结束（见 orchestrator.ErrConversationStart）。
func (r *Runner) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}
	err := r.ctrl.Start(ctx)
	r.publish()
	if r.ctrl.Ended() {
		r.finish()
		return err
	}
	if err != nil {
		return err
	}

	r.wg.Add(1)
	go r.processLoop()

	if r.opts.Source != nil {
		r.wg.Add(1)
		go r.runSource()
	}
	return nil
}

// Enqueue 将事件加入队列（异步，非阻塞）
func (r *Runner) Enqueue(evt model.Event) error {
	if err := r.accepting(); err != nil {
		return err
	}
	select {
	case r.events <- &queuedEvent{evt: evt, timestamp: time.Now()}:
		r.totalEvents.Add(1)
		return nil
	default:
		r.droppedEvents.Add(1)
		metrics.EventsDropped.Inc()
		r.log.Warn().Str("type", string(evt.Type)).Msg("queue full, dropping event")
		return ErrQueueFull
	}
}

// EnqueueSync 将事件加入队列并等待处理完成（同步），返回处理结果。
//
// 事件没能入队时错误同时匹配 ErrNotQueued；已入队但等待超时的事件仍会被处理。
func (r *Runner) EnqueueSync(ctx context.Context, evt model.Event) error {
	if err := r.accepting(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotQueued, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultEventTimeout)
		defer cancel()
	}

	qe := &queuedEvent{evt: evt, timestamp: time.Now(), resultCh: make(chan error, 1)}
	select {
	case r.events <- qe:
		r.totalEvents.Add(1)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNotQueued, ctx.Err())
	case <-r.done:
		return fmt.Errorf("%w: %w", ErrNotQueued, ErrEnded)
	}

	select {
	case err := <-qe.resultCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait event: %w", ctx.Err())
	case <-r.done:
		// 会话在处理过程中结束；若本事件已处理，结果仍在 resultCh 中。
		select {
		case err := <-qe.resultCh:
			return err
		default:
			return ErrEnded
		}
	}
}

func (r *Runner) accepting() error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	if r.ended.Load() {
		return ErrEnded
	}
	return nil
}

// processLoop 串行处理事件与计时（单协程）
func (r *Runner) processLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	r.log.Debug().Msg("process loop started")
	for {
		select {
		case <-r.ctx.Done():
			r.log.Debug().Msg("process loop stopped")
			return

		case qe := <-r.events:
			r.processEvent(qe)

		case <-ticker.C:
			r.ctrl.Tick(r.ctx, r.opts.Now())
			r.publish()
		}

		if r.ctrl.Ended() {
			r.finish()
			return
		}
	}
}

// processEvent 处理单个事件
func (r *Runner) processEvent(qe *queuedEvent) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, defaultEventTimeout)
	err := r.dispatch(ctx, qe.evt)
	cancel()

	r.processedEvents.Add(1)
	r.publish()

	processingTime := time.Since(startTime)
	logEvt := r.log.Debug()
	if err != nil {
		logEvt = r.log.Warn().Err(err)
	}
	logEvt.
		Str("type", string(qe.evt.Type)).
		Int64("seq", qe.evt.Seq).
		Dur("queue_latency", startTime.Sub(qe.timestamp)).
		Dur("processing_time", processingTime).
		Msg("event processed")

	if qe.resultCh != nil {
		select {
		case qe.resultCh <- err:
		default:
		}
	}

	if processingTime > 5*time.Second {
		r.log.Warn().Str("type", string(qe.evt.Type)).Dur("processing_time", processingTime).Msg("slow event processing")
	}
}

func (r *Runner) dispatch(ctx context.Context, evt model.Event) error {
	switch evt.Type {
	case model.EventUtterance:
		r.ctrl.HandleUtterance(ctx, evt.Text)
	case model.EventEmotion:
		if evt.Emotion == nil {
			return fmt.Errorf("%w: emotion event without sample", ErrBadEvent)
		}
		r.ctrl.HandleEmotion(*evt.Emotion)
	case model.EventChoice:
		return r.ctrl.SelectChoice(ctx, evt.ChoiceID)
	case model.EventStop:
		r.ctrl.Stop(ctx)
	case model.EventEmergencyStop:
		r.ctrl.EmergencyStop(ctx)
	case model.EventResolveAlert:
		return r.ctrl.ResolveAlert(evt.AlertIndex)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadEvent, evt.Type)
	}
	return nil
}

// runSource 服务端情绪来源，采样作为普通事件进入队列。
func (r *Runner) runSource() {
	defer r.wg.Done()

	err := r.opts.Source.Run(r.ctx, func(sample model.EmotionalState) {
		s := sample
		if err := r.Enqueue(model.Event{Type: model.EventEmotion, Emotion: &s}); err != nil && !errors.Is(err, ErrEnded) {
			r.log.Debug().Err(err).Msg("emotion sample dropped")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn().Err(err).Str("source", r.opts.Source.Name()).Msg("emotion source stopped")
	}
}

// finish 会话进入终态：停止计时与情绪来源，通知订阅者。只执行一次。
func (r *Runner) finish() {
	if !r.ended.CompareAndSwap(false, true) {
		return
	}
	close(r.done)
	r.cancel()

	r.subMu.Lock()
	for ch := range r.subs {
		close(ch)
	}
	r.subs = make(map[chan model.SessionSnapshot]struct{})
	r.subMu.Unlock()
}

// publish 发布新快照并推送给订阅者（只保留最新一份）。
func (r *Runner) publish() {
	snap := r.ctrl.Snapshot()
	r.snapshot.Store(&snap)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Snapshot 最近一次发布的快照。
func (r *Runner) Snapshot() model.SessionSnapshot {
	return *r.snapshot.Load()
}

// Subscribe 订阅快照推送。会话结束后通道关闭；cancel 取消订阅。
func (r *Runner) Subscribe() (<-chan model.SessionSnapshot, func()) {
	ch := make(chan model.SessionSnapshot, 1)
	ch <- r.Snapshot()

	r.subMu.Lock()
	if r.ended.Load() {
		r.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			defer r.subMu.Unlock()
			if _, ok := r.subs[ch]; ok {
				delete(r.subs, ch)
				close(ch)
			}
		})
	}
}

// Done 会话结束时关闭。
func (r *Runner) Done() <-chan struct{} { return r.done }

// Ended 会话是否已结束。
func (r *Runner) Ended() bool { return r.ended.Load() }

// Close 停止事件循环。未结束的会话按请求结束处理。
func (r *Runner) Close() error {
	if r.started.Load() && !r.ended.Load() {
		_ = r.EnqueueSync(context.Background(), model.Event{Type: model.EventStop})
	}
	r.cancel()
	r.wg.Wait()
	r.finish()

	r.log.Debug().
		Int64("total", r.totalEvents.Load()).
		Int64("processed", r.processedEvents.Load()).
		Int64("dropped", r.droppedEvents.Load()).
		Msg("runner closed")
	return nil
}

// Stats 队列统计信息
func (r *Runner) Stats() map[string]interface{} {
	return map[string]interface{}{
		"session_id":       r.id,
		"total_events":     r.totalEvents.Load(),
		"processed_events": r.processedEvents.Load(),
		"dropped_events":   r.droppedEvents.Load(),
		"pending_events":   len(r.events),
		"queue_capacity":   cap(r.events),
	}
}
