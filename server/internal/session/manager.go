package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyteller/server/internal/conversation"
	"storyteller/server/internal/emotion"
	"storyteller/server/internal/model"
	"storyteller/server/internal/narrator"
	"storyteller/server/internal/notify"
	"storyteller/server/internal/orchestrator"
	"storyteller/server/internal/report"
	"storyteller/server/internal/timeline"
)

var (
	// ErrTemplateNotFound 请求的故事模板不存在。
	ErrTemplateNotFound = errors.New("story template not found")
	// ErrInFlight 相同 EventID 的上一次提交尚未返回。
	ErrInFlight = errors.New("event already in flight")
)

const hookTimeout = 5 * time.Second

// Catalog 模板查询。
type Catalog interface {
	ByID(id string) (model.StoryTemplate, bool)
}

// Config 会话管理参数。
type Config struct {
	MaxDuration      time.Duration
	TickInterval     time.Duration
	TeardownTimeout  time.Duration
	QueueCapacity    int
	Retention        time.Duration
	FearThreshold    float64
	SadnessThreshold float64

	DefaultReplicaID string
	// MessageTimeout 单条旁白消息发给远端的超时，发送在会话协程之外进行。
	MessageTimeout time.Duration
	// Conversation 远端会话属性（超时、录制、转写、回调）。
	Conversation conversation.Request

	EmotionSource  string
	EmotionCadence time.Duration
	EmotionSeed    int64
}

// Deps Manager 依赖。
type Deps struct {
	Catalog  Catalog
	Engine   orchestrator.Advancer
	Provider conversation.Provider
	Narrator *narrator.Builder
	Store    Store
	Timeline timeline.Store
	Reports  report.Store
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Manager 创建会话并把入站事件路由到对应的 Runner。
//
// 入站事件先写 Timeline（append-first），再进入会话队列；已进入队列的 EventID 重复提交时直接确认，不重复处理。
type Manager struct {
	cfg      Config
	catalog  Catalog
	engine   orchestrator.Advancer
	provider conversation.Provider
	narrator *narrator.Builder
	store    Store
	timeline timeline.Store
	reports  report.Store
	notifier notify.Notifier
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}
	if deps.Store == nil {
		deps.Store = NewInMemoryStore()
	}
	if deps.Timeline == nil {
		deps.Timeline = timeline.NewInMemoryStore()
	}
	if deps.Reports == nil {
		deps.Reports = report.NewMemoryStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Manager{
		cfg:      cfg,
		catalog:  deps.Catalog,
		engine:   deps.Engine,
		provider: deps.Provider,
		narrator: deps.Narrator,
		store:    deps.Store,
		timeline: deps.Timeline,
		reports:  deps.Reports,
		notifier: deps.Notifier,
		log:      deps.Logger.With().Str("component", "session").Logger(),
		now:      deps.Now,
		newID:    deps.NewID,
		inflight: make(map[string]struct{}),
	}
}

// CreateRequest 开始一个故事会话。
type CreateRequest struct {
	TemplateID        string `json:"template_id"`
	ChildName         string `json:"child_name"`
	ReplicaID         string `json:"replica_id,omitempty"`
	CameraEnabled     bool   `json:"camera_enabled"`
	MicrophoneEnabled bool   `json:"microphone_enabled"`
}

// Create 创建并启动会话。远端会话创建失败时返回已结束的快照与 orchestrator.ErrConversationStart。
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.SessionSnapshot, error) {
	tpl, ok := m.catalog.ByID(req.TemplateID)
	if !ok {
		return model.SessionSnapshot{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, req.TemplateID)
	}

	id := m.newID()
	replicaID := strings.TrimSpace(req.ReplicaID)
	if replicaID == "" {
		replicaID = m.pickReplica(ctx, tpl)
	}

	ctrl := orchestrator.New(orchestrator.Options{
		SessionID:         id,
		Template:          tpl,
		ChildName:         strings.TrimSpace(req.ChildName),
		ReplicaID:         replicaID,
		CameraEnabled:     req.CameraEnabled,
		MicrophoneEnabled: req.MicrophoneEnabled,
		MaxDuration:       m.cfg.MaxDuration,
		FearThreshold:     m.cfg.FearThreshold,
		SadnessThreshold:  m.cfg.SadnessThreshold,
		TeardownTimeout:   m.cfg.TeardownTimeout,
		Conversation:      m.cfg.Conversation,
	}, orchestrator.Deps{
		Engine:   m.engine,
		Provider: m.provider,
		Narrator: m.narrator,
		Sender:   m.sender(),
		Hooks: orchestrator.Hooks{
			OnSessionEnd:    m.onSessionEnd,
			OnEmergencyStop: m.onEmergencyStop,
		},
		Logger: m.log,
		Now:    m.now,
	})

	runner := NewRunner(id, ctrl, RunnerOptions{
		TickInterval:  m.cfg.TickInterval,
		QueueCapacity: m.cfg.QueueCapacity,
		Source:        m.emotionSource(req.CameraEnabled),
		Logger:        m.log,
		Now:           m.now,
	})
	if err := m.store.Save(ctx, runner); err != nil {
		return model.SessionSnapshot{}, fmt.Errorf("save session: %w", err)
	}

	err := runner.Start(ctx)
	return runner.Snapshot(), err
}

func (m *Manager) sender() orchestrator.Sender {
	if m.provider == nil {
		return nil
	}
	return conversation.NewOutbox(m.provider, conversation.OutboxOptions{
		Timeout: m.cfg.MessageTimeout,
		Logger:  m.log,
	})
}

func (m *Manager) pickReplica(ctx context.Context, tpl model.StoryTemplate) string {
	if m.provider == nil {
		return m.cfg.DefaultReplicaID
	}
	replicas, err := m.provider.ListReplicas(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("list replicas failed, using default replica")
	}
	return conversation.PickReplica(replicas, tpl.PersonaHint, m.cfg.DefaultReplicaID)
}

func (m *Manager) emotionSource(cameraEnabled bool) emotion.Source {
	if !cameraEnabled || m.cfg.EmotionSource != emotion.SourceStub {
		return nil
	}
	src, err := emotion.NewSource(emotion.SourceStub, m.cfg.EmotionCadence, m.cfg.EmotionSeed)
	if err != nil {
		m.log.Warn().Err(err).Msg("emotion source unavailable")
		return nil
	}
	return src
}

// Get 会话快照。
func (m *Manager) Get(ctx context.Context, id string) (model.SessionSnapshot, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	return r.Snapshot(), nil
}

// Runner 返回会话的 Runner（用于订阅推送）。
func (m *Manager) Runner(ctx context.Context, id string) (*Runner, error) {
	return m.store.Get(ctx, id)
}

// Submit 记录并处理一个入站事件，等待处理完成。
// duplicate=true 表示相同 EventID 已被接收，本次只做确认。
//
// 事件没能进入会话队列时撤回 Timeline 中的记录，同一 EventID 的重试会被重新处理；
// 同一 EventID 仍在提交中时返回 ErrInFlight。
func (m *Manager) Submit(ctx context.Context, id string, evt model.Event) (seq int64, duplicate bool, err error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if err := validateEvent(evt); err != nil {
		return 0, false, err
	}
	if r.Ended() {
		return 0, false, ErrEnded
	}

	if evt.EventID != "" {
		release, ok := m.claim(id, evt.EventID)
		if !ok {
			return 0, false, fmt.Errorf("%w: %s", ErrInFlight, evt.EventID)
		}
		defer release()
	}

	now := m.now()
	evt.SessionID = id
	evt.ServerTS = now
	if evt.ClientTS.IsZero() {
		evt.ClientTS = now
	}
	if evt.Type == model.EventEmotion && evt.Emotion.Timestamp.IsZero() {
		sample := *evt.Emotion
		sample.Timestamp = now
		evt.Emotion = &sample
	}

	// append-first：先写事实，再进入队列，避免“说了但没记”。
	seq, duplicate, err = m.timeline.Append(ctx, id, &evt)
	if err != nil {
		return 0, false, fmt.Errorf("append timeline: %w", err)
	}
	if duplicate {
		return seq, true, nil
	}

	if err := r.EnqueueSync(ctx, evt); err != nil {
		if errors.Is(err, ErrNotQueued) {
			if rerr := m.timeline.Retract(context.WithoutCancel(ctx), id, seq); rerr != nil {
				m.log.Error().Err(rerr).Str("session_id", id).Int64("seq", seq).Msg("retract timeline failed")
			}
			return 0, false, err
		}
		return seq, false, err
	}
	return seq, false, nil
}

// claim 标记 (session, EventID) 正在提交，返回释放函数。
func (m *Manager) claim(sessionID, eventID string) (func(), bool) {
	key := sessionID + "/" + eventID
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return nil, false
	}
	m.inflight[key] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}, true
}

func validateEvent(evt model.Event) error {
	if evt.Type != model.EventEmotion {
		return nil
	}
	if evt.Emotion == nil {
		return fmt.Errorf("%w: emotion event without sample", ErrBadEvent)
	}
	if err := emotion.Validate(*evt.Emotion); err != nil {
		return fmt.Errorf("%w: %w", ErrBadEvent, err)
	}
	return nil
}

// Events 会话的入站事件日志。
func (m *Manager) Events(ctx context.Context, id string) ([]model.Event, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.timeline.List(ctx, id)
}

// Replicas 可选的数字人形象。
func (m *Manager) Replicas(ctx context.Context) ([]conversation.Replica, error) {
	if m.provider == nil {
		return nil, nil
	}
	return m.provider.ListReplicas(ctx)
}

// RemoteTranscript 远端会话的对话记录。会话未建立远端连接时返回空。
func (m *Manager) RemoteTranscript(ctx context.Context, id string) ([]conversation.Utterance, error) {
	snap, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.provider == nil || snap.ConversationID == "" {
		return nil, nil
	}
	return m.provider.GetTranscript(ctx, snap.ConversationID)
}

// Report 家长报告。
func (m *Manager) Report(ctx context.Context, id string) (report.Report, error) {
	return m.reports.Get(ctx, id)
}

// RecentReports 最近结束的会话报告，按结束时间倒序。
func (m *Manager) RecentReports(ctx context.Context, limit int) ([]report.Report, error) {
	return m.reports.List(ctx, limit)
}

func (m *Manager) onSessionEnd(res orchestrator.Result) {
	m.saveReport(res)
}

func (m *Manager) onEmergencyStop(res orchestrator.Result) {
	m.saveReport(res)

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	alert := notify.GuardianAlert{
		SessionID:  res.SessionID,
		TemplateID: res.TemplateID,
		ChildName:  res.ChildName,
		Reason:     res.Reason,
		Alerts:     res.Alerts,
		At:         res.EndedAt,
	}
	if err := m.notifier.Notify(ctx, alert); err != nil {
		m.log.Error().Err(err).Str("session_id", res.SessionID).Msg("guardian notify failed")
	}
}

func (m *Manager) saveReport(res orchestrator.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	rep := report.Report{
		SessionID:  res.SessionID,
		TemplateID: res.TemplateID,
		ChildName:  res.ChildName,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		Reason:     res.Reason,
		Transcript: res.Transcript,
		Alerts:     res.Alerts,
	}
	if err := m.reports.Save(ctx, rep); err != nil {
		m.log.Error().Err(err).Str("session_id", res.SessionID).Msg("save report failed")
	}
}

// Sweep 清理超过保留时长的已结束会话，返回清理数量。
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	runners, err := m.store.List(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("list sessions failed")
		return 0
	}
	n := 0
	for _, r := range runners {
		if !expired(r, now, m.cfg.Retention) {
			continue
		}
		_ = r.Close()
		_ = m.store.Delete(ctx, r.ID())
		_ = m.timeline.Drop(ctx, r.ID())
		n++
	}
	if n > 0 {
		m.log.Debug().Int("removed", n).Msg("swept ended sessions")
	}
	return n
}

// Run 周期性清理，直到 ctx 结束。
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, m.now())
		}
	}
}

// Close 结束所有会话。
func (m *Manager) Close() error {
	runners, err := m.store.List(context.Background())
	if err != nil {
		return err
	}
	for _, r := range runners {
		_ = r.Close()
	}
	return nil
}
