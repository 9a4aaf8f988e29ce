package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/server/internal/model"
)

func sampleAlert() GuardianAlert {
	return GuardianAlert{
		SessionID:  "s1",
		TemplateID: "forest-adventure-static",
		ChildName:  "Mia",
		Reason:     model.EndEmergency,
		Alerts: []model.SafetyAlert{
			{Level: model.AlertMedium, Keywords: []string{"sad"}},
			{Level: model.AlertHigh, Keywords: []string{"secret", "concerning-pattern"}},
		},
		At: time.Unix(1700000000, 0),
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "notify", line["component"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "emergency", line["reason"])
	assert.EqualValues(t, 1, line["high_alerts"])
}

func TestNewDefaultsToLog(t *testing.T) {
	n, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)
}

// setupRedis 需要本地 Redis，不可用时跳过。
func setupRedis(t *testing.T) *RedisNotifier {
	addr := os.Getenv("STORYTELLER_TEST_REDIS")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	n, err := NewRedisNotifier(Config{RedisAddr: addr, Stream: "test:guardian:" + t.Name()})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return n
}

func TestRedisNotifier(t *testing.T) {
	n := setupRedis(t)
	defer n.Close()
	ctx := context.Background()
	defer n.rdb.Del(ctx, n.Stream())

	require.NoError(t, n.Notify(ctx, sampleAlert()))

	msgs, err := n.rdb.XRange(ctx, n.Stream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1", msgs[0].Values["session_id"])
	assert.Equal(t, "1", msgs[0].Values["high_alerts"])

	var alerts []model.SafetyAlert
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["alerts"].(string)), &alerts))
	assert.Len(t, alerts, 2)
}
