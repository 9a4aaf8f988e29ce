package progression

import (
	"storyteller/server/internal/model"
)

const (
	// RedirectNarrative 高风险输入时的固定转移话术。
	RedirectNarrative = "That's an interesting thought! Let's focus on our wonderful story instead. What would you like to see happen next in our adventure?"
	// ContinueNarrative 找不到当前里程碑时的兜底话术。
	ContinueNarrative = "Let's continue with our amazing story!"
)

// Classifier 安全分类器。
type Classifier interface {
	Classify(text string) *model.SafetyAlert
}

// Result 一轮推进的结果。
type Result struct {
	Narrative string `json:"narrative"`
	// NextMilestoneID 为空表示不推进。
	NextMilestoneID string             `json:"next_milestone_id,omitempty"`
	ShouldContinue  bool               `json:"should_continue"`
	SafetyAlert     *model.SafetyAlert `json:"safety_alert,omitempty"`
	Choices         []model.Choice     `json:"choices,omitempty"`
}

// Engine 里程碑推进引擎。
//
// 无状态：每次调用只依赖入参；所有分支都有兜底，不返回错误也不 panic。
// 是否因高风险输入终止会话由上层会话控制器决定，引擎只负责转移话题并上报告警。
type Engine struct {
	classifier Classifier
}

func NewEngine(classifier Classifier) *Engine {
	return &Engine{classifier: classifier}
}

// Advance 根据当前里程碑、孩子的发言与情绪决定下一步。
func (e *Engine) Advance(template model.StoryTemplate, currentMilestoneID, utterance string, mood model.Mood) Result {
	var alert *model.SafetyAlert
	if e.classifier != nil {
		alert = e.classifier.Classify(utterance)
	}
	if alert != nil && alert.Level == model.AlertHigh {
		return Result{
			Narrative:      RedirectNarrative,
			ShouldContinue: true,
			SafetyAlert:    alert,
		}
	}

	idx := template.MilestoneIndex(currentMilestoneID)
	if idx < 0 {
		return Result{
			Narrative:      ContinueNarrative,
			ShouldContinue: true,
			SafetyAlert:    alert,
		}
	}
	milestone := template.Milestones[idx]

	res := Result{
		Narrative:   Adapt(milestone, mood),
		SafetyAlert: alert,
	}

	// 位置后继：孩子口头表达的选择不参与推进，选择由调用方显式提交。
	if idx+1 < len(template.Milestones) {
		res.NextMilestoneID = template.Milestones[idx+1].ID
		res.ShouldContinue = true
	}

	if template.StoryType == model.StoryTypeDynamic && len(milestone.Choices) > 0 {
		res.Choices = append([]model.Choice(nil), milestone.Choices...)
	}
	return res
}

// Adapt 取情绪对应的适配文本，缺失时回退到 neutral。
func Adapt(milestone model.Milestone, mood model.Mood) string {
	if text, ok := milestone.Adaptations[mood]; ok && text != "" {
		return text
	}
	return milestone.Adaptations[model.MoodNeutral]
}
