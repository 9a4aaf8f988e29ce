package emotion

import (
	"errors"

	"storyteller/server/internal/model"
)

// ErrOutOfRange 采样中有得分不在 [0,1] 内。
var ErrOutOfRange = errors.New("emotion scores must be within [0,1]")

// Label 情绪标签。
type Label string

const (
	Joy      Label = "joy"
	Surprise Label = "surprise"
	Anger    Label = "anger"
	Fear     Label = "fear"
	Sadness  Label = "sadness"
	Disgust  Label = "disgust"
	Neutral  Label = "neutral"
)

// Score 一个 (标签, 得分) 对。
type Score struct {
	Label Label
	Value float64
}

// Scores 按固定枚举顺序展开采样：joy, surprise, anger, fear, sadness, disgust, neutral。
func Scores(e model.Emotions) []Score {
	return []Score{
		{Joy, e.Joy},
		{Surprise, e.Surprise},
		{Anger, e.Anger},
		{Fear, e.Fear},
		{Sadness, e.Sadness},
		{Disgust, e.Disgust},
		{Neutral, e.Neutral},
	}
}

// Dominant 取最高分的标签。
// 规则：按 Scores 的顺序扫描，只有严格大于当前最大值才替换，因此并列时先出现者胜出。
func Dominant(sample model.EmotionalState) Label {
	scores := Scores(sample.Emotions)
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Value > best.Value {
			best = s
		}
	}
	return best.Label
}

// boredEngagement 参与度低于该值时视为无聊。
const boredEngagement = 0.25

// Mood 把情绪采样映射为故事适配表的键。
//
// 没有采样时为 neutral。fear 映射为 scared，joy/surprise 映射为 excited，
// 参与度过低映射为 bored；其余标签原样透传，由推进引擎回退到 neutral。
func Mood(sample *model.EmotionalState) model.Mood {
	if sample == nil {
		return model.MoodNeutral
	}
	label := Dominant(*sample)
	switch label {
	case Fear:
		return model.MoodScared
	case Joy, Surprise:
		if sample.Engagement > 0 && sample.Engagement < boredEngagement {
			return model.MoodBored
		}
		return model.MoodExcited
	case Neutral:
		if sample.Engagement > 0 && sample.Engagement < boredEngagement {
			return model.MoodBored
		}
		return model.MoodNeutral
	default:
		return model.Mood(label)
	}
}

// Concerning 判断采样是否需要写入监控记录（不会结束会话）。
func Concerning(sample model.EmotionalState, fearThreshold, sadnessThreshold float64) bool {
	return sample.Emotions.Fear > fearThreshold || sample.Emotions.Sadness > sadnessThreshold
}

// Validate 检查各情绪得分与注意力、参与度、置信度都在 [0,1] 内。
func Validate(sample model.EmotionalState) error {
	e := sample.Emotions
	for _, v := range []float64{e.Joy, e.Surprise, e.Anger, e.Fear, e.Sadness, e.Disgust, e.Neutral, sample.Attention, sample.Engagement, sample.Confidence} {
		if !(v >= 0 && v <= 1) {
			return ErrOutOfRange
		}
	}
	return nil
}
