package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream 监护人通知流。
const DefaultStream = "storyteller:guardian-alerts"

// RedisNotifier 以 XADD 写入 Redis Stream，由家长端服务消费。
type RedisNotifier struct {
	rdb    *redis.Client
	stream string
}

// NewRedisNotifier 连接 Redis 并校验可用。
func NewRedisNotifier(cfg Config) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{rdb: rdb, stream: stream}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, alert GuardianAlert) error {
	alertsJSON, err := json.Marshal(alert.Alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}
	values := map[string]interface{}{
		"session_id":  alert.SessionID,
		"template_id": alert.TemplateID,
		"child_name":  alert.ChildName,
		"reason":      string(alert.Reason),
		"high_alerts": strconv.Itoa(alert.HighAlerts()),
		"alerts":      string(alertsJSON),
		"at":          strconv.FormatInt(alert.At.Unix(), 10),
	}

	if err := n.rdb.XAdd(ctx, &redis.XAddArgs{Stream: n.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// Stream 通知流名称。
func (n *RedisNotifier) Stream() string { return n.stream }

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
