package model

import "time"

// Category 故事类别。
type Category string

const (
	CategoryAdventure   Category = "adventure"
	CategoryEducational Category = "educational"
	CategoryMoral       Category = "moral"
	CategoryBedtime     Category = "bedtime"
)

// StoryType 区分线性故事与带分支选择的故事。
type StoryType string

const (
	StoryTypeStatic  StoryType = "static"
	StoryTypeDynamic StoryType = "dynamic"
)

// Mood 是里程碑适配表的键。
type Mood string

const (
	MoodScared   Mood = "scared"
	MoodBored    Mood = "bored"
	MoodConfused Mood = "confused"
	MoodExcited  Mood = "excited"
	MoodNeutral  Mood = "neutral"
)

// AgeRange 适龄区间（闭区间）。
type AgeRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains 判断年龄是否落在区间内（含边界）。
func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

// Choice 动态故事中可供孩子选择的分支。
type Choice struct {
	ID          string `json:"id" yaml:"id"`
	Text        string `json:"text" yaml:"text"`
	Consequence string `json:"consequence" yaml:"consequence"`
	// NextMilestone 为空时沿用位置后继。
	NextMilestone string `json:"next_milestone,omitempty" yaml:"next_milestone,omitempty"`
}

// Milestone 故事中的一个叙事节点。
type Milestone struct {
	ID                string          `json:"id" yaml:"id"`
	Title             string          `json:"title" yaml:"title"`
	Description       string          `json:"description" yaml:"description"`
	Required          bool            `json:"required" yaml:"required"`
	EmotionalTriggers []string        `json:"emotional_triggers" yaml:"emotional_triggers"`
	Adaptations       map[Mood]string `json:"adaptations" yaml:"adaptations"`
	Choices           []Choice        `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// StoryTemplate 一个故事的不可变定义。
type StoryTemplate struct {
	ID                 string      `json:"id" yaml:"id"`
	Title              string      `json:"title" yaml:"title"`
	Category           Category    `json:"category" yaml:"category"`
	AgeRange           AgeRange    `json:"age_range" yaml:"age_range"`
	Description        string      `json:"description" yaml:"description"`
	EstimatedMinutes   int         `json:"estimated_minutes" yaml:"estimated_minutes"`
	Difficulty         string      `json:"difficulty" yaml:"difficulty"`
	StoryType          StoryType   `json:"story_type" yaml:"story_type"`
	Milestones         []Milestone `json:"milestones" yaml:"milestones"`
	Characters         []string    `json:"characters,omitempty" yaml:"characters,omitempty"`
	Settings           []string    `json:"settings,omitempty" yaml:"settings,omitempty"`
	MoralLesson        string      `json:"moral_lesson,omitempty" yaml:"moral_lesson,omitempty"`
	EducationalContent []string    `json:"educational_content,omitempty" yaml:"educational_content,omitempty"`
	// PersonaHint 偏好的讲述者人设（friendly/wise/calm）。
	PersonaHint string `json:"persona_hint,omitempty" yaml:"persona_hint,omitempty"`
}

// MilestoneIndex 返回里程碑在模板中的位置，找不到时返回 -1。
func (t StoryTemplate) MilestoneIndex(id string) int {
	for i, m := range t.Milestones {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// AlertLevel 安全告警等级。
type AlertLevel string

const (
	AlertLow    AlertLevel = "low"
	AlertMedium AlertLevel = "medium"
	AlertHigh   AlertLevel = "high"
)

// AlertContext 告警来源。
type AlertContext string

const (
	ContextChildInput       AlertContext = "child-input"
	ContextStoryContent     AlertContext = "story-content"
	ContextBehaviorAnalysis AlertContext = "behavior-analysis"
)

// SafetyAlert 分级安全信号。创建后只允许修改 Resolved。
type SafetyAlert struct {
	Level     AlertLevel   `json:"level" yaml:"level"`
	Keywords  []string     `json:"keywords" yaml:"keywords"`
	Message   string       `json:"message" yaml:"message"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
	Context   AlertContext `json:"context" yaml:"context"`
	Resolved  bool         `json:"resolved" yaml:"resolved"`
}

// Emotions 情绪得分，均在 [0,1]。
type Emotions struct {
	Joy      float64 `json:"joy"`
	Surprise float64 `json:"surprise"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Sadness  float64 `json:"sadness"`
	Disgust  float64 `json:"disgust"`
	Neutral  float64 `json:"neutral"`
}

// EmotionalState 某一时刻的情绪采样。
type EmotionalState struct {
	Timestamp  time.Time `json:"timestamp"`
	Emotions   Emotions  `json:"emotions"`
	Attention  float64   `json:"attention"`
	Engagement float64   `json:"engagement"`
	Confidence float64   `json:"confidence"`
}

// Speaker 转写条目的说话方。
type Speaker string

const (
	SpeakerChild     Speaker = "child"
	SpeakerCharacter Speaker = "character"
	SpeakerSystem    Speaker = "system"
)

// TranscriptEntry 会话转写条目，只追加不修改。
type TranscriptEntry struct {
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Speaker    Speaker   `json:"speaker" yaml:"speaker"`
	Text       string    `json:"text" yaml:"text"`
	Emotion    string    `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	Confidence float64   `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// SessionStatus 会话生命周期状态。
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusActive       SessionStatus = "active"
	StatusEnded        SessionStatus = "ended"
)

// EndReason 会话结束原因。
type EndReason string

const (
	EndCompleted  EndReason = "completed"
	EndTimeout    EndReason = "timeout"
	EndRequested  EndReason = "requested"
	EndEmergency  EndReason = "emergency"
	EndStartError EndReason = "start_failed"
)

// Emergency 表示该结束原因需要提醒监护人。
func (r EndReason) Emergency() bool {
	return r == EndEmergency || r == EndStartError
}

// Progress 里程碑进度（StoryProgressTracker 使用）。
type Progress struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// SessionSnapshot 会话的只读快照，供 API 轮询与 WebSocket 推送。
type SessionSnapshot struct {
	SessionID         string            `json:"session_id"`
	TemplateID        string            `json:"template_id"`
	TemplateTitle     string            `json:"template_title"`
	ChildName         string            `json:"child_name"`
	Status            SessionStatus     `json:"status"`
	EndReason         EndReason         `json:"end_reason,omitempty"`
	ConversationID    string            `json:"conversation_id,omitempty"`
	ConversationURL   string            `json:"conversation_url,omitempty"`
	StartedAt         time.Time         `json:"started_at,omitempty"`
	EndedAt           time.Time         `json:"ended_at,omitempty"`
	RemainingSec      int               `json:"remaining_sec"`
	CurrentMilestone  string            `json:"current_milestone"`
	Visited           []string          `json:"visited"`
	Progress          Progress          `json:"progress"`
	Choices           []Choice          `json:"choices,omitempty"`
	CameraEnabled     bool              `json:"camera_enabled"`
	MicrophoneEnabled bool              `json:"microphone_enabled"`
	DominantEmotion   string            `json:"dominant_emotion,omitempty"`
	Transcript        []TranscriptEntry `json:"transcript"`
	Alerts            []SafetyAlert     `json:"alerts"`
}

// Event 表示会话时间线中的一条入站事件。
type Event struct {
	// Seq 由后端分配的单调序号，用于回放与幂等。
	Seq int64 `json:"seq,omitempty"`
	// SessionID 由服务端补齐，客户端可不传。
	SessionID string `json:"session_id,omitempty"`
	// EventID 用于去重与重试幂等，客户端可传 UUID。
	EventID string `json:"event_id,omitempty"`

	// Type 表示事件类型（utterance/emotion/choice/stop/emergency_stop）。
	Type EventType `json:"type"`
	// Text 是最终转写文本。
	Text string `json:"text,omitempty"`
	// ChoiceID 承载分支选择事件。
	ChoiceID string `json:"choice_id,omitempty"`
	// Emotion 承载情绪采样事件。
	Emotion *EmotionalState `json:"emotion,omitempty"`
	// AlertIndex 承载告警处理事件。
	AlertIndex int `json:"alert_index,omitempty"`
	// ClientTS/ServerTS 用于对齐体验与回放，ServerTS 由后端补齐。
	ClientTS time.Time `json:"client_ts,omitempty"`
	ServerTS time.Time `json:"server_ts,omitempty"`
}

// EventType 入站事件类型。
type EventType string

const (
	EventUtterance     EventType = "utterance"
	EventEmotion       EventType = "emotion"
	EventChoice        EventType = "choice"
	EventStop          EventType = "stop"
	EventEmergencyStop EventType = "emergency_stop"
	EventResolveAlert  EventType = "resolve_alert"
)
