package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyteller/server/internal/conversation"
	"storyteller/server/internal/emotion"
	"storyteller/server/internal/metrics"
	"storyteller/server/internal/model"
	"storyteller/server/internal/narrator"
	"storyteller/server/internal/progression"
)

var (
	// ErrConversationStart 远端会话创建失败，会话已按紧急停止处理。
	ErrConversationStart = errors.New("conversation could not start")
	// ErrUnknownChoice 选项不在最近一次提供的列表中。
	ErrUnknownChoice = errors.New("unknown choice")
	// ErrUnknownAlert 告警下标越界。
	ErrUnknownAlert = errors.New("unknown alert")
	// ErrEnded 会话已结束，操作没有生效。
	ErrEnded = errors.New("session ended")
)

const (
	DefaultMaxDuration      = 600 * time.Second
	DefaultFearThreshold    = 0.7
	DefaultSadnessThreshold = 0.6
	DefaultTeardownTimeout  = 5 * time.Second
)

// Advancer 里程碑推进。
type Advancer interface {
	Advance(template model.StoryTemplate, currentMilestoneID, utterance string, mood model.Mood) progression.Result
}

// Result 会话结束时交给外部钩子的结果，Transcript/Alerts 均为副本。
type Result struct {
	SessionID  string                  `json:"session_id"`
	TemplateID string                  `json:"template_id"`
	ChildName  string                  `json:"child_name"`
	Reason     model.EndReason         `json:"reason"`
	StartedAt  time.Time               `json:"started_at"`
	EndedAt    time.Time               `json:"ended_at"`
	Transcript []model.TranscriptEntry `json:"transcript"`
	Alerts     []model.SafetyAlert     `json:"alerts"`
}

// Hooks 会话结束的对外通知。钩子在会话的处理协程里同步调用，不应阻塞。
type Hooks struct {
	OnSessionEnd    func(Result)
	OnEmergencyStop func(Result)
}

// Sender 把旁白消息异步发给远端数字人，不阻塞会话处理协程。
// Send 返回 false 表示消息被丢弃；Close 在会话结束时调用一次。
type Sender interface {
	Send(conversationID, message string) bool
	Close()
}

// Options 单个会话的参数。
type Options struct {
	SessionID         string
	Template          model.StoryTemplate
	ChildName         string
	ReplicaID         string
	CameraEnabled     bool
	MicrophoneEnabled bool

	MaxDuration      time.Duration
	FearThreshold    float64
	SadnessThreshold float64
	TeardownTimeout  time.Duration

	// Conversation 远端会话属性模板，ReplicaID/Name/Context/Greeting 由控制器填充。
	Conversation conversation.Request
}

// Deps 控制器依赖。
type Deps struct {
	Engine   Advancer
	Provider conversation.Provider
	Narrator *narrator.Builder
	// Sender 为空时 say 在当前协程同步调用 Provider.SendMessage。
	Sender Sender
	Hooks  Hooks
	Logger zerolog.Logger
	Now    func() time.Time
}

// Controller 单个故事会话的状态机：initializing → active → ended。
//
// 约束：
// - 非并发安全，调用方保证同一时刻只有一个协程驱动（见 session.Runner）。
// - ended 为终态，之后的一切输入都被忽略。
// - 转写与告警只追加；告警唯一允许的修改是 Resolved。
type Controller struct {
	opts     Options
	engine   Advancer
	provider conversation.Provider
	narrator *narrator.Builder
	sender   Sender
	hooks    Hooks
	log      zerolog.Logger
	now      func() time.Time

	status    model.SessionStatus
	reason    model.EndReason
	startedAt time.Time
	endedAt   time.Time

	current    string
	visited    []string
	transcript []model.TranscriptEntry
	alerts     []model.SafetyAlert
	latest     *model.EmotionalState
	choices    []model.Choice

	conversationID  string
	conversationURL string
}

func New(opts Options, deps Deps) *Controller {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.FearThreshold <= 0 {
		opts.FearThreshold = DefaultFearThreshold
	}
	if opts.SadnessThreshold <= 0 {
		opts.SadnessThreshold = DefaultSadnessThreshold
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		opts:     opts,
		engine:   deps.Engine,
		provider: deps.Provider,
		narrator: deps.Narrator,
		sender:   deps.Sender,
		hooks:    deps.Hooks,
		log:      deps.Logger.With().Str("component", "orchestrator").Str("session_id", opts.SessionID).Logger(),
		now:      now,
		status:   model.StatusInitializing,
	}
}

// Start 创建远端会话并进入 active。
//
// 失败时会话直接结束并触发紧急停止钩子（fail-safe），返回 ErrConversationStart。
func (c *Controller) Start(ctx context.Context) error {
	if c.status != model.StatusInitializing {
		return nil
	}
	tpl := c.opts.Template
	if len(tpl.Milestones) == 0 {
		return fmt.Errorf("template %s has no milestones", tpl.ID)
	}

	req := c.opts.Conversation
	req.ReplicaID = c.opts.ReplicaID
	req.Name = narrator.ConversationName(c.opts.ChildName, tpl)
	if req.MaxDurationSeconds == 0 {
		req.MaxDurationSeconds = int(c.opts.MaxDuration.Seconds())
	}
	if c.narrator != nil {
		nreq := narrator.Request{
			SessionID:   c.opts.SessionID,
			ChildName:   c.opts.ChildName,
			Template:    tpl,
			MaxDuration: c.opts.MaxDuration,
		}
		prompt, err := c.narrator.Build(nreq)
		if err == nil {
			err = c.narrator.Validate(prompt)
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("narrator prompt invalid, using fallback")
			prompt = c.narrator.BuildFallback(nreq)
		}
		req.Context = prompt.Context
		req.Greeting = prompt.Greeting
	}

	if !c.opts.CameraEnabled {
		c.log.Info().Msg("camera disabled, emotion detection unavailable")
	}
	if !c.opts.MicrophoneEnabled {
		c.log.Info().Msg("microphone disabled, text input only")
	}

	var (
		conv conversation.Conversation
		err  error
	)
	if c.provider == nil {
		err = errors.New("no conversation provider")
	} else {
		began := time.Now()
		conv, err = c.provider.CreateConversation(ctx, req)
		metrics.ConversationLatency.WithLabelValues("create").Observe(time.Since(began).Seconds())
	}
	if err != nil {
		c.log.Error().Err(err).Str("replica_id", req.ReplicaID).Msg("create conversation failed")
		c.appendSystem("Session could not start")
		c.terminate(ctx, model.EndStartError)
		return fmt.Errorf("%w: %v", ErrConversationStart, err)
	}

	c.conversationID = conv.ID
	c.conversationURL = conv.URL
	c.startedAt = c.now()
	c.status = model.StatusActive
	c.moveTo(tpl.Milestones[0].ID)
	c.appendSystem("Story session started: " + tpl.Title)
	metrics.ActiveSessions.Inc()

	c.log.Info().
		Str("template_id", tpl.ID).
		Str("conversation_id", conv.ID).
		Msg("session started")
	return nil
}

// Tick 计时。剩余时间归零时以 timeout 结束会话。
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if c.status != model.StatusActive {
		return
	}
	if c.remaining(now) > 0 {
		return
	}
	c.appendSystem("Session ended due to time limit")
	c.terminate(ctx, model.EndTimeout)
}

// HandleUtterance 处理孩子的一句话。
func (c *Controller) HandleUtterance(ctx context.Context, text string) {
	if c.status != model.StatusActive {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	entry := model.TranscriptEntry{
		Timestamp: c.now(),
		Speaker:   model.SpeakerChild,
		Text:      text,
	}
	if c.latest != nil {
		entry.Emotion = string(emotion.Dominant(*c.latest))
		entry.Confidence = c.latest.Confidence
	}
	c.transcript = append(c.transcript, entry)

	res := c.engine.Advance(c.opts.Template, c.current, text, emotion.Mood(c.latest))

	if res.SafetyAlert != nil {
		c.alerts = append(c.alerts, *res.SafetyAlert)
		metrics.SafetyAlerts.WithLabelValues(string(res.SafetyAlert.Level)).Inc()
		c.log.Warn().
			Str("level", string(res.SafetyAlert.Level)).
			Strs("keywords", res.SafetyAlert.Keywords).
			Msg("safety alert")
		if res.SafetyAlert.Level == model.AlertHigh {
			c.emergency(ctx)
			return
		}
	}

	c.appendEntry(model.SpeakerCharacter, res.Narrative)
	c.choices = res.Choices

	if !res.ShouldContinue {
		c.log.Info().Str("milestone", c.current).Msg("story completed")
		c.terminate(ctx, model.EndCompleted)
		return
	}
	if res.NextMilestoneID != "" {
		c.moveTo(res.NextMilestoneID)
	}

	c.say(ctx, progression.ContextualReply(text))
}

// HandleEmotion 记录最新情绪采样；恐惧或悲伤过高时写入一条监控记录。
func (c *Controller) HandleEmotion(sample model.EmotionalState) {
	if c.status == model.StatusEnded {
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = c.now()
	}
	c.latest = &sample

	if c.status != model.StatusActive {
		return
	}
	if !emotion.Concerning(sample, c.opts.FearThreshold, c.opts.SadnessThreshold) {
		return
	}
	dominant := string(emotion.Dominant(sample))
	c.transcript = append(c.transcript, model.TranscriptEntry{
		Timestamp:  c.now(),
		Speaker:    model.SpeakerSystem,
		Text:       "Child showing signs of " + dominant,
		Emotion:    dominant,
		Confidence: sample.Confidence,
	})
	c.log.Info().Str("emotion", dominant).Msg("concerning emotion")
}

// SelectChoice 孩子在动态故事中选择了一个分支。
func (c *Controller) SelectChoice(ctx context.Context, choiceID string) error {
	if c.status == model.StatusEnded {
		return ErrEnded
	}
	if c.status != model.StatusActive {
		return nil
	}
	var picked *model.Choice
	for i := range c.choices {
		if c.choices[i].ID == choiceID {
			picked = &c.choices[i]
			break
		}
	}
	if picked == nil {
		return fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
	}
	choice := *picked
	c.choices = nil

	c.appendEntry(model.SpeakerChild, choice.Text)
	c.appendEntry(model.SpeakerCharacter, choice.Consequence)
	if choice.NextMilestone != "" && c.opts.Template.MilestoneIndex(choice.NextMilestone) >= 0 {
		c.moveTo(choice.NextMilestone)
	}

	c.say(ctx, "The child chose: "+choice.Text+". "+choice.Consequence)
	return nil
}

// Stop 正常结束（回到首页）。
func (c *Controller) Stop(ctx context.Context) {
	if c.status == model.StatusEnded {
		return
	}
	c.appendSystem("Session ended by request")
	c.terminate(ctx, model.EndRequested)
}

// EmergencyStop 监护人触发的紧急停止。
func (c *Controller) EmergencyStop(ctx context.Context) {
	if c.status == model.StatusEnded {
		return
	}
	c.emergency(ctx)
}

// ResolveAlert 标记告警已处理。会话结束后告警只读，返回 ErrEnded。
func (c *Controller) ResolveAlert(index int) error {
	if c.status == model.StatusEnded {
		return ErrEnded
	}
	if index < 0 || index >= len(c.alerts) {
		return fmt.Errorf("%w: %d", ErrUnknownAlert, index)
	}
	c.alerts[index].Resolved = true
	return nil
}

// Status 当前状态。
func (c *Controller) Status() model.SessionStatus {
	return c.status
}

// Ended 会话是否已结束。
func (c *Controller) Ended() bool {
	return c.status == model.StatusEnded
}

// Snapshot 生成只读快照，切片均为副本。
func (c *Controller) Snapshot() model.SessionSnapshot {
	tpl := c.opts.Template
	snap := model.SessionSnapshot{
		SessionID:         c.opts.SessionID,
		TemplateID:        tpl.ID,
		TemplateTitle:     tpl.Title,
		ChildName:         c.opts.ChildName,
		Status:            c.status,
		EndReason:         c.reason,
		ConversationID:    c.conversationID,
		ConversationURL:   c.conversationURL,
		StartedAt:         c.startedAt,
		EndedAt:           c.endedAt,
		CurrentMilestone:  c.current,
		Visited:           append([]string{}, c.visited...),
		Progress:          model.Progress{Index: max(tpl.MilestoneIndex(c.current), 0), Total: len(tpl.Milestones)},
		Choices:           append([]model.Choice(nil), c.choices...),
		CameraEnabled:     c.opts.CameraEnabled,
		MicrophoneEnabled: c.opts.MicrophoneEnabled,
		Transcript:        c.copyTranscript(),
		Alerts:            c.copyAlerts(),
	}
	switch c.status {
	case model.StatusActive:
		snap.RemainingSec = int(c.remaining(c.now()).Seconds())
	case model.StatusInitializing:
		snap.RemainingSec = int(c.opts.MaxDuration.Seconds())
	}
	if c.latest != nil {
		snap.DominantEmotion = string(emotion.Dominant(*c.latest))
	}
	return snap
}

func (c *Controller) remaining(now time.Time) time.Duration {
	left := c.opts.MaxDuration - now.Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Controller) moveTo(id string) {
	c.current = id
	for _, v := range c.visited {
		if v == id {
			return
		}
	}
	c.visited = append(c.visited, id)
}

func (c *Controller) appendSystem(text string) {
	c.appendEntry(model.SpeakerSystem, text)
}

func (c *Controller) appendEntry(speaker model.Speaker, text string) {
	c.transcript = append(c.transcript, model.TranscriptEntry{
		Timestamp: c.now(),
		Speaker:   speaker,
		Text:      text,
	})
}

// say 把一句话发给远端数字人，失败只记录日志。
func (c *Controller) say(ctx context.Context, message string) {
	if c.provider == nil || c.conversationID == "" {
		return
	}
	if c.sender != nil {
		if !c.sender.Send(c.conversationID, message) {
			c.log.Warn().Msg("outbound message dropped")
		}
		return
	}
	if err := c.provider.SendMessage(ctx, c.conversationID, message); err != nil {
		c.log.Warn().Err(err).Msg("send message failed")
	}
}

func (c *Controller) emergency(ctx context.Context) {
	c.appendSystem("Emergency stop activated")
	c.terminate(ctx, model.EndEmergency)
}

// terminate 统一的结束流程：置 ended、尽力结束远端会话、调用钩子。
func (c *Controller) terminate(ctx context.Context, reason model.EndReason) {
	wasActive := c.status == model.StatusActive
	c.status = model.StatusEnded
	c.reason = reason
	c.endedAt = c.now()
	c.choices = nil
	if wasActive {
		metrics.ActiveSessions.Dec()
	}
	metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()

	// 先停掉未发出的旁白，再结束远端会话。
	if c.sender != nil {
		c.sender.Close()
	}
	if c.provider != nil && c.conversationID != "" {
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.TeardownTimeout)
		began := time.Now()
		if err := c.provider.EndConversation(teardownCtx, c.conversationID); err != nil {
			c.log.Error().Err(err).Str("conversation_id", c.conversationID).Msg("end conversation failed")
		}
		metrics.ConversationLatency.WithLabelValues("end").Observe(time.Since(began).Seconds())
		cancel()
	}

	c.log.Info().Str("reason", string(reason)).Int("transcript", len(c.transcript)).Msg("session ended")

	res := c.result()
	if reason.Emergency() {
		if c.hooks.OnEmergencyStop != nil {
			c.hooks.OnEmergencyStop(res)
		}
		return
	}
	if c.hooks.OnSessionEnd != nil {
		c.hooks.OnSessionEnd(res)
	}
}

func (c *Controller) result() Result {
	return Result{
		SessionID:  c.opts.SessionID,
		TemplateID: c.opts.Template.ID,
		ChildName:  c.opts.ChildName,
		Reason:     c.reason,
		StartedAt:  c.startedAt,
		EndedAt:    c.endedAt,
		Transcript: c.copyTranscript(),
		Alerts:     c.copyAlerts(),
	}
}

func (c *Controller) copyTranscript() []model.TranscriptEntry {
	return append([]model.TranscriptEntry{}, c.transcript...)
}

func (c *Controller) copyAlerts() []model.SafetyAlert {
	out := make([]model.SafetyAlert, len(c.alerts))
	for i, a := range c.alerts {
		a.Keywords = append([]string(nil), a.Keywords...)
		out[i] = a
	}
	return out
}
