package safety

import (
	"testing"
	"time"

	"storyteller/server/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestClassifier(opts ...Option) *Classifier {
	return NewClassifier(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

// TestClassifyHighRiskKeywords 高风险词总是 high。
func TestClassifyHighRiskKeywords(t *testing.T) {
	c := newTestClassifier()
	for _, text := range []string{
		"I found a knife",
		"there was BLOOD on the floor",
		"my knee has pain",
		"he has a gun",
	} {
		alert := c.Classify(text)
		require.NotNil(t, alert, text)
		assert.Equal(t, model.AlertHigh, alert.Level, text)
		assert.Equal(t, text, alert.Message)
		assert.Equal(t, model.ContextChildInput, alert.Context)
		assert.Equal(t, fixedNow, alert.Timestamp)
	}
}

// TestClassifyMediumKeywords 普通风险词为 medium。
func TestClassifyMediumKeywords(t *testing.T) {
	c := newTestClassifier()

	alert := c.Classify("I am a little afraid of the dark")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertMedium, alert.Level)
	assert.Equal(t, []string{"afraid"}, alert.Keywords)
}

// TestClassifyPatternWithoutKeyword 场景：没有任何关键词命中，只命中句式，仍然是 high。
func TestClassifyPatternWithoutKeyword(t *testing.T) {
	c := newTestClassifier()

	alert := c.Classify("dont tell anyone please")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertHigh, alert.Level)
	assert.Equal(t, []string{PatternTag}, alert.Keywords)
}

// TestClassifyPatternOverridesMedium 场景：关键词只够 medium，但句式强制升级。
func TestClassifyPatternOverridesMedium(t *testing.T) {
	c := newTestClassifier()

	alert := c.Classify("he told me to keep it a secret")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertHigh, alert.Level)
	assert.Contains(t, alert.Keywords, "secret")
	assert.Contains(t, alert.Keywords, PatternTag)

	alert = c.Classify("Don't tell anyone")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertHigh, alert.Level)
	assert.Contains(t, alert.Keywords, PatternTag)
}

// TestClassifyNoSignal 无信号返回 nil。
func TestClassifyNoSignal(t *testing.T) {
	c := newTestClassifier()
	for _, text := range []string{
		"this is scary",
		"I like the fox",
		"can we count to three",
		"",
	} {
		assert.Nil(t, c.Classify(text), text)
	}
}

// TestClassifyIsPure 同一输入多次调用结果一致。
func TestClassifyIsPure(t *testing.T) {
	c := newTestClassifier()
	first := c.Classify("the stranger said keep our secret")
	second := c.Classify("the stranger said keep our secret")
	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Nil(t, c.Classify("hello fox"))
	assert.Nil(t, c.Classify("hello fox"))
}

// TestClassifyExtraWords 配置追加的词表生效。
func TestClassifyExtraWords(t *testing.T) {
	c := newTestClassifier(WithExtraKeywords("Monster"), WithExtraHighRisk("poison"))

	alert := c.Classify("a monster lives here")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertMedium, alert.Level)
	assert.Equal(t, []string{"monster"}, alert.Keywords)

	alert = c.Classify("the apple had poison")
	require.NotNil(t, alert)
	assert.Equal(t, model.AlertHigh, alert.Level)

	assert.NotContains(t, NewClassifier().Keywords(), "monster")
}
