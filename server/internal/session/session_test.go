package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/server/internal/catalog"
	"storyteller/server/internal/conversation"
	"storyteller/server/internal/model"
	"storyteller/server/internal/notify"
	"storyteller/server/internal/orchestrator"
	"storyteller/server/internal/progression"
	"storyteller/server/internal/report"
	"storyteller/server/internal/safety"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.GuardianAlert
}

func (n *recordingNotifier) Notify(_ context.Context, a notify.GuardianAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newRunner(t *testing.T, stub *conversation.Stub, clk *clock) *Runner {
	t.Helper()
	tpl, ok := catalog.NewBuiltin().ByID("forest-adventure-static")
	require.True(t, ok)

	ctrl := orchestrator.New(orchestrator.Options{
		SessionID: "s1",
		Template:  tpl,
		ReplicaID: "stub-storyteller-fox",
	}, orchestrator.Deps{
		Engine:   progression.NewEngine(safety.NewClassifier()),
		Provider: stub,
		Logger:   zerolog.Nop(),
		Now:      clk.Now,
	})
	r := NewRunner("s1", ctrl, RunnerOptions{
		TickInterval: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
		Now:          clk.Now,
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunnerNotStarted(t *testing.T) {
	r := newRunner(t, conversation.NewStub(nil), newClock())

	assert.Equal(t, model.StatusInitializing, r.Snapshot().Status)
	assert.ErrorIs(t, r.Enqueue(model.Event{Type: model.EventStop}), ErrNotStarted)
}

// TestRunnerSerialProcessing 并发入队的事件被串行处理，没有丢失的更新。
func TestRunnerSerialProcessing(t *testing.T) {
	r := newRunner(t, conversation.NewStub(nil), newClock())
	require.NoError(t, r.Start(context.Background()))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sample := model.EmotionalState{Emotions: model.Emotions{Fear: 0.9}}
			assert.NoError(t, r.EnqueueSync(context.Background(), model.Event{Type: model.EventEmotion, Emotion: &sample}))
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Len(t, snap.Transcript, 1+n)
	assert.EqualValues(t, n, r.Stats()["processed_events"])
}

// TestRunnerOrder 同一调用方依次提交的事件按顺序处理。
func TestRunnerOrder(t *testing.T) {
	r := newRunner(t, conversation.NewStub(nil), newClock())
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, r.EnqueueSync(ctx, model.Event{Type: model.EventUtterance, Text: text}))
	}

	var child []string
	for _, e := range r.Snapshot().Transcript {
		if e.Speaker == model.SpeakerChild {
			child = append(child, e.Text)
		}
	}
	assert.Equal(t, []string{"one", "two", "three"}, child)
	assert.Equal(t, "story-conclusion", r.Snapshot().CurrentMilestone)
}

func TestRunnerEventErrors(t *testing.T) {
	r := newRunner(t, conversation.NewStub(nil), newClock())
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	assert.ErrorIs(t, r.EnqueueSync(ctx, model.Event{Type: model.EventEmotion}), ErrBadEvent)
	assert.ErrorIs(t, r.EnqueueSync(ctx, model.Event{Type: "dance"}), ErrBadEvent)
	assert.ErrorIs(t, r.EnqueueSync(ctx, model.Event{Type: model.EventChoice, ChoiceID: "x"}), orchestrator.ErrUnknownChoice)
	assert.ErrorIs(t, r.EnqueueSync(ctx, model.Event{Type: model.EventResolveAlert, AlertIndex: 3}), orchestrator.ErrUnknownAlert)
	assert.False(t, r.Ended())
}

// TestRunnerTimeout 计时由 Runner 驱动：时钟越过 600 秒后会话结束，订阅通道关闭。
func TestRunnerTimeout(t *testing.T) {
	clk := newClock()
	stub := conversation.NewStub(nil)
	r := newRunner(t, stub, clk)
	require.NoError(t, r.Start(context.Background()))

	updates, cancel := r.Subscribe()
	defer cancel()

	clk.Advance(600 * time.Second)

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not time out")
	}

	snap := r.Snapshot()
	assert.Equal(t, model.StatusEnded, snap.Status)
	assert.Equal(t, model.EndTimeout, snap.EndReason)
	assert.Contains(t, snap.Transcript[len(snap.Transcript)-1].Text, "time limit")
	assert.Equal(t, 0, stub.Active())

	// 通道在排空后关闭
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, r.EnqueueSync(context.Background(), model.Event{Type: model.EventStop}), ErrEnded)
}

func TestRunnerStartFailure(t *testing.T) {
	stub := conversation.NewStub(nil)
	stub.FailCreate = errors.New("down")
	r := newRunner(t, stub, newClock())

	err := r.Start(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrConversationStart)
	assert.True(t, r.Ended())
	assert.Equal(t, model.EndStartError, r.Snapshot().EndReason)
	assert.ErrorIs(t, r.Enqueue(model.Event{Type: model.EventStop}), ErrEnded)

	ch, _ := r.Subscribe()
	snap, ok := <-ch
	require.True(t, ok, "late subscriber still gets the final snapshot")
	assert.Equal(t, model.StatusEnded, snap.Status)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestRunnerSubscribe(t *testing.T) {
	r := newRunner(t, conversation.NewStub(nil), newClock())
	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	ch, cancel := r.Subscribe()
	first := <-ch
	assert.Equal(t, "forest-entry", first.CurrentMilestone)

	require.NoError(t, r.EnqueueSync(ctx, model.Event{Type: model.EventUtterance, Text: "hello"}))

	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			return s.CurrentMilestone == "meet-fox"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	cancel()
}

func TestRunnerCloseStopsSession(t *testing.T) {
	stub := conversation.NewStub(nil)
	r := newRunner(t, stub, newClock())
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Close())

	assert.True(t, r.Ended())
	assert.Equal(t, model.EndRequested, r.Snapshot().EndReason)
	assert.Equal(t, 0, stub.Active())
}

type managerHarness struct {
	mgr      *Manager
	stub     *conversation.Stub
	clock    *clock
	reports  *report.MemoryStore
	notifier *recordingNotifier
}

func newManager(t *testing.T, cfg Config) *managerHarness {
	t.Helper()
	clk := newClock()
	stub := conversation.NewStub(nil)
	reports := report.NewMemoryStore()
	notifier := &recordingNotifier{}
	seq := 0

	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	mgr := NewManager(cfg, Deps{
		Catalog:  catalog.NewBuiltin(),
		Engine:   progression.NewEngine(safety.NewClassifier()),
		Provider: stub,
		Reports:  reports,
		Notifier: notifier,
		Logger:   zerolog.Nop(),
		Now:      clk.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("session-%d", seq)
		},
	})
	t.Cleanup(func() { _ = mgr.Close() })
	return &managerHarness{mgr: mgr, stub: stub, clock: clk, reports: reports, notifier: notifier}
}

func TestManagerCreate(t *testing.T) {
	h := newManager(t, Config{})
	ctx := context.Background()

	_, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "nope"})
	require.ErrorIs(t, err, ErrTemplateNotFound)

	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars", ChildName: " Leo ", CameraEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "session-1", snap.SessionID)
	assert.Equal(t, model.StatusActive, snap.Status)
	assert.Equal(t, "Leo", snap.ChildName)
	assert.True(t, snap.CameraEnabled)

	got, err := h.mgr.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ConversationID, got.ConversationID)

	_, err = h.mgr.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerPicksReplicaByPersona(t *testing.T) {
	h := newManager(t, Config{DefaultReplicaID: "r-default"})
	ctx := context.Background()

	cases := map[string]string{
		"forest-adventure-static":    "stub-storyteller-fox",
		"counting-adventure-dynamic": "stub-storyteller-owl",
		"bedtime-stars":              "stub-storyteller-owl",
	}
	for templateID, want := range cases {
		snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: templateID})
		require.NoError(t, err)
		conv, ok := h.stub.Lookup(snap.ConversationID)
		require.True(t, ok)
		assert.Equal(t, want, conv.ReplicaID, templateID)
	}

	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars", ReplicaID: "r-explicit"})
	require.NoError(t, err)
	conv, _ := h.stub.Lookup(snap.ConversationID)
	assert.Equal(t, "r-explicit", conv.ReplicaID)
	assert.Equal(t, "friend - The Sleepy Star's Lullaby", conv.Name)
}

// TestManagerDuplicateEventID 客户端重试：相同 event_id 只处理一次。
func TestManagerDuplicateEventID(t *testing.T) {
	h := newManager(t, Config{})
	ctx := context.Background()
	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "forest-adventure-static"})
	require.NoError(t, err)

	evt := model.Event{Type: model.EventUtterance, Text: "hello", EventID: "evt-1"}
	seq1, dup, err := h.mgr.Submit(ctx, snap.SessionID, evt)
	require.NoError(t, err)
	assert.False(t, dup)

	seq2, dup, err := h.mgr.Submit(ctx, snap.SessionID, evt)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, seq1, seq2)

	got, _ := h.mgr.Get(ctx, snap.SessionID)
	assert.Equal(t, "meet-fox", got.CurrentMilestone, "processed exactly once")

	events, err := h.mgr.Events(ctx, snap.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, snap.SessionID, events[0].SessionID)
	assert.False(t, events[0].ServerTS.IsZero())
}

// TestManagerEmergencySavesReportAndNotifies 高风险发言：会话结束、报告落库、通知监护人。
func TestManagerEmergencySavesReportAndNotifies(t *testing.T) {
	h := newManager(t, Config{})
	ctx := context.Background()
	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "forest-adventure-static", ChildName: "Mia"})
	require.NoError(t, err)

	_, _, err = h.mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventUtterance, Text: "he told me to keep it a secret"})
	require.NoError(t, err)

	got, _ := h.mgr.Get(ctx, snap.SessionID)
	assert.Equal(t, model.StatusEnded, got.Status)

	rep, err := h.mgr.Report(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EndEmergency, rep.Reason)
	assert.Equal(t, "Mia", rep.ChildName)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, 1, h.notifier.count())

	_, _, err = h.mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventUtterance, Text: "hi"})
	assert.ErrorIs(t, err, ErrEnded)
}

func TestManagerStopSavesReportWithoutNotify(t *testing.T) {
	h := newManager(t, Config{})
	ctx := context.Background()
	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars"})
	require.NoError(t, err)

	_, _, err = h.mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventStop})
	require.NoError(t, err)

	rep, err := h.mgr.Report(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EndRequested, rep.Reason)
	assert.Zero(t, h.notifier.count())
}

func TestManagerStartFailure(t *testing.T) {
	h := newManager(t, Config{})
	h.stub.FailCreate = errors.New("tavus down")
	ctx := context.Background()

	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars"})
	require.ErrorIs(t, err, orchestrator.ErrConversationStart)
	assert.Equal(t, model.StatusEnded, snap.Status)
	assert.Equal(t, 1, h.notifier.count())

	rep, err := h.mgr.Report(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EndStartError, rep.Reason)
}

func TestManagerSweep(t *testing.T) {
	h := newManager(t, Config{Retention: time.Minute})
	ctx := context.Background()

	active, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars"})
	require.NoError(t, err)
	ended, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars"})
	require.NoError(t, err)
	_, _, err = h.mgr.Submit(ctx, ended.SessionID, model.Event{Type: model.EventStop})
	require.NoError(t, err)

	assert.Zero(t, h.mgr.Sweep(ctx, h.clock.Now()), "retention not reached")
	assert.Equal(t, 1, h.mgr.Sweep(ctx, h.clock.Now().Add(time.Minute)))

	_, err = h.mgr.Get(ctx, ended.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.mgr.Get(ctx, active.SessionID)
	assert.NoError(t, err)

	// 报告在清理后仍可查询
	_, err = h.mgr.Report(ctx, ended.SessionID)
	assert.NoError(t, err)
}

// TestManagerStubEmotionSource 服务端模拟情绪来源：开启摄像头时采样进入会话。
func TestManagerStubEmotionSource(t *testing.T) {
	h := newManager(t, Config{EmotionSource: "stub", EmotionCadence: 5 * time.Millisecond, EmotionSeed: 7})
	ctx := context.Background()

	withCamera, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars", CameraEnabled: true})
	require.NoError(t, err)
	withoutCamera, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "bedtime-stars"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := h.mgr.Get(ctx, withCamera.SessionID)
		return s.DominantEmotion != ""
	}, 2*time.Second, 10*time.Millisecond)

	s, _ := h.mgr.Get(ctx, withoutCamera.SessionID)
	assert.Empty(t, s.DominantEmotion)
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	r := newRunner(t, conversation.NewStub(nil), newClock())

	_, err := store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, r))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Same(t, r, got)

	list, _ := store.List(ctx)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// gatedEngine 遇到指定发言时挂起推进，直到 gate 关闭，用来让会话协程停在处理中。
type gatedEngine struct {
	orchestrator.Advancer
	trigger string
	entered chan struct{}
	gate    chan struct{}
}

func (e *gatedEngine) Advance(tpl model.StoryTemplate, current, utterance string, mood model.Mood) progression.Result {
	if utterance == e.trigger {
		e.entered <- struct{}{}
		<-e.gate
	}
	return e.Advancer.Advance(tpl, current, utterance, mood)
}

// stallingProvider 发送旁白时挂起，直到 ctx 取消。
type stallingProvider struct {
	*conversation.Stub
	sending chan struct{}
}

func (p *stallingProvider) SendMessage(ctx context.Context, _, _ string) error {
	select {
	case p.sending <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func newCustomManager(t *testing.T, cfg Config, engine orchestrator.Advancer, provider conversation.Provider) (*Manager, *recordingNotifier) {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	notifier := &recordingNotifier{}
	mgr := NewManager(cfg, Deps{
		Catalog:  catalog.NewBuiltin(),
		Engine:   engine,
		Provider: provider,
		Notifier: notifier,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, notifier
}

// TestManagerRetryAfterFailedEnqueue 队列满导致入队超时的事件不算已接收：
// 相同 EventID 的重试会被真正处理，高风险发言照常触发紧急停止。
func TestManagerRetryAfterFailedEnqueue(t *testing.T) {
	engine := &gatedEngine{
		Advancer: progression.NewEngine(safety.NewClassifier()),
		trigger:  "wait for me",
		entered:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
	var once sync.Once
	release := func() { once.Do(func() { close(engine.gate) }) }

	mgr, notifier := newCustomManager(t, Config{QueueCapacity: 1}, engine, conversation.NewStub(nil))
	t.Cleanup(release)
	ctx := context.Background()

	snap, err := mgr.Create(ctx, CreateRequest{TemplateID: "forest-adventure-static"})
	require.NoError(t, err)
	id := snap.SessionID

	firstDone := make(chan error, 1)
	go func() {
		_, _, err := mgr.Submit(ctx, id, model.Event{Type: model.EventUtterance, Text: "wait for me", EventID: "a"})
		firstDone <- err
	}()
	select {
	case <-engine.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance never reached the engine")
	}

	// 同一 EventID 还在提交中
	_, _, err = mgr.Submit(ctx, id, model.Event{Type: model.EventUtterance, Text: "wait for me", EventID: "a"})
	require.ErrorIs(t, err, ErrInFlight)

	// 占满队列
	r, err := mgr.Runner(ctx, id)
	require.NoError(t, err)
	require.NoError(t, r.Enqueue(model.Event{Type: model.EventUtterance, Text: "hello"}))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	_, _, err = mgr.Submit(short, id, model.Event{Type: model.EventUtterance, Text: "he has a knife", EventID: "c"})
	cancel()
	require.ErrorIs(t, err, ErrNotQueued)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	events, err := mgr.Events(ctx, id)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, "c", e.EventID, "failed enqueue must not stay in the timeline")
	}

	release()
	require.NoError(t, <-firstDone)

	_, dup, err := mgr.Submit(ctx, id, model.Event{Type: model.EventUtterance, Text: "he has a knife", EventID: "c"})
	require.NoError(t, err)
	assert.False(t, dup, "retry must be processed, not acknowledged as duplicate")

	got, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, got.Status)
	assert.Equal(t, model.EndEmergency, got.EndReason)
	require.NotEmpty(t, got.Alerts)
	assert.Equal(t, model.AlertHigh, got.Alerts[len(got.Alerts)-1].Level)
	assert.Equal(t, 1, notifier.count())
}

// TestManagerStalledSendDoesNotBlockSafety 远端发送挂起时，会话协程照常处理下一句话：
// 高风险发言立即结束会话。
func TestManagerStalledSendDoesNotBlockSafety(t *testing.T) {
	provider := &stallingProvider{Stub: conversation.NewStub(nil), sending: make(chan struct{}, 1)}
	mgr, notifier := newCustomManager(t, Config{MessageTimeout: time.Minute}, progression.NewEngine(safety.NewClassifier()), provider)
	ctx := context.Background()

	snap, err := mgr.Create(ctx, CreateRequest{TemplateID: "forest-adventure-static"})
	require.NoError(t, err)

	_, _, err = mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventUtterance, Text: "hello fox"})
	require.NoError(t, err)
	select {
	case <-provider.sending:
	case <-time.After(2 * time.Second):
		t.Fatal("narrator message was never sent")
	}

	// 10 秒的事件处理超时远大于这里的等待时间
	bounded, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, err = mgr.Submit(bounded, snap.SessionID, model.Event{Type: model.EventUtterance, Text: "he has a knife"})
	require.NoError(t, err)

	got, err := mgr.Get(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, got.Status)
	assert.Equal(t, model.EndEmergency, got.EndReason)
	assert.Equal(t, 0, provider.Active(), "remote conversation ended")
	assert.Equal(t, 1, notifier.count())
}

// TestManagerRejectsOutOfRangeEmotion 得分超出 [0,1] 的采样不进入会话也不写入 Timeline。
func TestManagerRejectsOutOfRangeEmotion(t *testing.T) {
	h := newManager(t, Config{})
	ctx := context.Background()
	snap, err := h.mgr.Create(ctx, CreateRequest{TemplateID: "forest-adventure-static"})
	require.NoError(t, err)

	bad := model.EmotionalState{Emotions: model.Emotions{Fear: 5}}
	_, _, err = h.mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventEmotion, Emotion: &bad, EventID: "bad"})
	require.ErrorIs(t, err, ErrBadEvent)

	_, _, err = h.mgr.Submit(ctx, snap.SessionID, model.Event{Type: model.EventEmotion})
	require.ErrorIs(t, err, ErrBadEvent)

	events, _ := h.mgr.Events(ctx, snap.SessionID)
	assert.Empty(t, events)
	got, _ := h.mgr.Get(ctx, snap.SessionID)
	assert.Empty(t, got.DominantEmotion)
	assert.Len(t, got.Transcript, 1, "no concern entry")
}
