package report

import (
	"context"
	"errors"
	"time"

	"storyteller/server/internal/model"
)

var ErrNotFound = errors.New("report not found")

// Report 会话结束后给家长查看的记录。
type Report struct {
	SessionID  string                  `json:"session_id"`
	TemplateID string                  `json:"template_id"`
	ChildName  string                  `json:"child_name"`
	StartedAt  time.Time               `json:"started_at"`
	EndedAt    time.Time               `json:"ended_at"`
	Reason     model.EndReason         `json:"reason"`
	Transcript []model.TranscriptEntry `json:"transcript"`
	Alerts     []model.SafetyAlert     `json:"alerts"`
}

// Duration 会话时长；未开始的会话为 0。
func (r Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Unresolved 未处理的告警数。
func (r Report) Unresolved() int {
	n := 0
	for _, a := range r.Alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// Store 报告存储。
type Store interface {
	Save(ctx context.Context, r Report) error
	Get(ctx context.Context, sessionID string) (Report, error)
	// List 按结束时间倒序返回最近的报告。
	List(ctx context.Context, limit int) ([]Report, error)
	Close() error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open 按驱动名打开存储。
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, errors.New("unknown report driver: " + driver)
	}
}
