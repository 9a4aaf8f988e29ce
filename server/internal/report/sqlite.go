package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"storyteller/server/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	session_id  TEXT PRIMARY KEY,
	template_id TEXT NOT NULL,
	child_name  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	transcript  TEXT NOT NULL,
	alerts      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_ended_at ON reports(ended_at);
`

// SQLiteStore 基于 modernc.org/sqlite（纯 Go，无需 cgo）的报告存储。
// 转写与告警以 JSON 文本列保存。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开数据库并建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite dsn is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, r Report) error {
	transcript, err := json.Marshal(r.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	alerts, err := json.Marshal(r.Alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports
			(session_id, template_id, child_name, started_at, ended_at, reason, transcript, alerts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.TemplateID, r.ChildName,
		formatTime(r.StartedAt), formatTime(r.EndedAt),
		string(r.Reason), string(transcript), string(alerts),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, template_id, child_name, started_at, ended_at, reason, transcript, alerts
		FROM reports WHERE session_id = ?`, sessionID)

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, template_id, child_name, started_at, ended_at, reason, transcript, alerts
		FROM reports ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (Report, error) {
	var (
		r                  Report
		started, ended     string
		reason             string
		transcript, alerts string
	)
	if err := sc.Scan(&r.SessionID, &r.TemplateID, &r.ChildName, &started, &ended, &reason, &transcript, &alerts); err != nil {
		return Report{}, err
	}
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	r.Reason = model.EndReason(reason)
	if err := json.Unmarshal([]byte(transcript), &r.Transcript); err != nil {
		return Report{}, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal([]byte(alerts), &r.Alerts); err != nil {
		return Report{}, fmt.Errorf("decode alerts: %w", err)
	}
	return r, nil
}

// timeLayout 定宽格式，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
