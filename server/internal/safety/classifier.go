package safety

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"storyteller/server/internal/model"
)

// PatternTag 是命中可疑句式时写入告警的关键词标签。
const PatternTag = "concerning-pattern"

// DefaultKeywords 风险关键词。按子串匹配，宁可误报不可漏报。
var DefaultKeywords = []string{
	"hurt", "pain", "scared", "afraid", "sad", "angry", "hate", "kill", "die", "blood",
	"weapon", "gun", "knife", "fight", "violence", "abuse", "inappropriate", "secret",
	"don't tell", "private parts", "touch", "uncomfortable", "stranger", "alone",
}

// DefaultHighRisk 命中任意一个即升级为 high。
var DefaultHighRisk = []string{
	"hurt", "pain", "kill", "die", "blood", "weapon", "gun", "knife", "abuse",
}

// DefaultPatterns 诱导类句式，不依赖关键词命中。
var DefaultPatterns = []string{
	`(?i)don'?t tell`,
	`(?i)keep.*secret`,
	`(?i)our.*secret`,
	`(?i)touch.*private`,
	`(?i)uncomfortable`,
}

// Classifier 对孩子的发言做风险分级。
//
// 约定：
// - 构造后只读，可被多个会话并发共享。
// - Classify 除时间戳外是输入的纯函数。
type Classifier struct {
	keywords []string
	highRisk map[string]struct{}
	patterns []*regexp.Regexp
	now      func() time.Time
}

// Option 调整分类器。
type Option func(*Classifier)

// WithClock 注入时钟，便于测试。
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithExtraKeywords 追加关键词（配置项 safety.extra_keywords）。
func WithExtraKeywords(words ...string) Option {
	return func(c *Classifier) {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" && !slices.Contains(c.keywords, w) {
				c.keywords = append(c.keywords, w)
			}
		}
	}
}

// WithExtraHighRisk 追加高风险词，同时加入关键词表。
func WithExtraHighRisk(words ...string) Option {
	return func(c *Classifier) {
		WithExtraKeywords(words...)(c)
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				c.highRisk[w] = struct{}{}
			}
		}
	}
}

// NewClassifier 用内置词表和句式创建分类器。
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		keywords: slices.Clone(DefaultKeywords),
		highRisk: make(map[string]struct{}, len(DefaultHighRisk)),
		patterns: make([]*regexp.Regexp, 0, len(DefaultPatterns)),
		now:      time.Now,
	}
	for _, w := range DefaultHighRisk {
		c.highRisk[w] = struct{}{}
	}
	for _, p := range DefaultPatterns {
		c.patterns = append(c.patterns, regexp.MustCompile(p))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify 返回告警，没有风险信号时返回 nil。
// 可疑句式总是会被检查：即使关键词已命中，也会强制升级为 high 并追加 PatternTag。
func (c *Classifier) Classify(text string) *model.SafetyAlert {
	lower := strings.ToLower(text)

	var matched []string
	level := model.AlertMedium
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
			if _, ok := c.highRisk[kw]; ok {
				level = model.AlertHigh
			}
		}
	}

	for _, p := range c.patterns {
		if p.MatchString(text) {
			matched = append(matched, PatternTag)
			level = model.AlertHigh
			break
		}
	}

	if len(matched) == 0 {
		return nil
	}

	return &model.SafetyAlert{
		Level:     level,
		Keywords:  matched,
		Message:   text,
		Timestamp: c.now(),
		Context:   model.ContextChildInput,
	}
}

// Keywords 返回当前关键词表的副本。
func (c *Classifier) Keywords() []string {
	return slices.Clone(c.keywords)
}
