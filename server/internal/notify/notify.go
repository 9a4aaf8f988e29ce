package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"storyteller/server/internal/model"
)

// GuardianAlert 紧急停止时发给监护人的通知。
type GuardianAlert struct {
	SessionID  string              `json:"session_id"`
	TemplateID string              `json:"template_id"`
	ChildName  string              `json:"child_name"`
	Reason     model.EndReason     `json:"reason"`
	Alerts     []model.SafetyAlert `json:"alerts"`
	At         time.Time           `json:"at"`
}

// HighAlerts high 级告警数量。
func (a GuardianAlert) HighAlerts() int {
	n := 0
	for _, al := range a.Alerts {
		if al.Level == model.AlertHigh {
			n++
		}
	}
	return n
}

// Notifier 投递监护人通知。
type Notifier interface {
	Notify(ctx context.Context, alert GuardianAlert) error
	Close() error
}

// LogNotifier 只写日志，本地开发默认使用。
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, alert GuardianAlert) error {
	n.log.Warn().
		Str("session_id", alert.SessionID).
		Str("child_name", alert.ChildName).
		Str("reason", string(alert.Reason)).
		Int("alerts", len(alert.Alerts)).
		Int("high_alerts", alert.HighAlerts()).
		Msg("guardian alert")
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Config 通知配置；RedisAddr 为空时使用日志通知。
type Config struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Stream        string `yaml:"stream"`
}

// New 按配置创建通知器。
func New(cfg Config, log zerolog.Logger) (Notifier, error) {
	if cfg.RedisAddr == "" {
		return NewLogNotifier(log), nil
	}
	return NewRedisNotifier(cfg)
}
