package emotion

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"storyteller/server/internal/model"
)

// Sink 接收情绪采样。
type Sink func(model.EmotionalState)

// Source 情绪采样来源。会话引擎只消费采样，不关心来源是真实检测还是桩。
type Source interface {
	// Run 按固定节奏产出采样，直到 ctx 取消。
	Run(ctx context.Context, sink Sink) error
	Name() string
}

const (
	SourceClient = "client"
	SourceStub   = "stub"
)

// DefaultCadence 采样节奏。
const DefaultCadence = 500 * time.Millisecond

// NewSource 按配置选择实现。
func NewSource(kind string, cadence time.Duration, seed int64) (Source, error) {
	switch kind {
	case "", SourceClient:
		return ClientSource{}, nil
	case SourceStub:
		return NewStubSource(cadence, seed), nil
	default:
		return nil, fmt.Errorf("unknown emotion source: %s", kind)
	}
}

// ClientSource 浏览器端检测、通过 HTTP/WebSocket 推送采样；服务端不主动产出。
type ClientSource struct{}

func (ClientSource) Run(ctx context.Context, _ Sink) error {
	<-ctx.Done()
	return nil
}

func (ClientSource) Name() string { return SourceClient }

// StubSource 以固定种子生成确定性的采样序列。
// 分布与前端模拟检测器一致：joy/neutral 占主导，fear/sadness 很低。
type StubSource struct {
	cadence time.Duration
	seed    int64
}

func NewStubSource(cadence time.Duration, seed int64) *StubSource {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &StubSource{cadence: cadence, seed: seed}
}

func (s *StubSource) Name() string { return SourceStub }

func (s *StubSource) Run(ctx context.Context, sink Sink) error {
	gen := NewGenerator(s.seed)
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sink(gen.Next(now))
		}
	}
}

// Generator 确定性采样生成器，同一种子产出同一序列。
type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Next 生成下一条采样。
func (g *Generator) Next(ts time.Time) model.EmotionalState {
	r := g.rnd.Float64
	return model.EmotionalState{
		Timestamp: ts,
		Emotions: model.Emotions{
			Joy:      r()*0.8 + 0.1,
			Surprise: r() * 0.3,
			Anger:    r() * 0.1,
			Fear:     r() * 0.1,
			Sadness:  r() * 0.1,
			Disgust:  r() * 0.05,
			Neutral:  r()*0.4 + 0.3,
		},
		Attention:  r()*0.6 + 0.4,
		Engagement: r()*0.7 + 0.3,
		Confidence: r()*0.3 + 0.7,
	}
}
