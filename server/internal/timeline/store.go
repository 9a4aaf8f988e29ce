package timeline

import (
	"context"

	"storyteller/server/internal/model"
)

// Store 会话入站事件的只追加日志。
type Store interface {
	// Append 在事件进入会话处理队列之前写入，返回分配的 seq。
	// 同一 session 的 seq 单调递增；相同 EventID 返回已分配的 seq 且 duplicate=true，调用方不应再处理。
	Append(ctx context.Context, sessionID string, evt *model.Event) (seq int64, duplicate bool, err error)
	// List 返回该 session 的全量事件（按 seq 顺序），用于回放与家长报告。
	List(ctx context.Context, sessionID string) ([]model.Event, error)
	// Retract 撤回一次未能进入处理队列的写入，释放其 EventID 以便客户端重试。seq 不回收。
	Retract(ctx context.Context, sessionID string, seq int64) error
	// Drop 会话被清理后释放其事件。
	Drop(ctx context.Context, sessionID string) error
}
