package catalog

import (
	"errors"
	"fmt"

	"storyteller/server/internal/model"
)

// ErrInvalidTemplate 模板违反结构约束。
var ErrInvalidTemplate = errors.New("invalid story template")

// CategoryAll 查询全部类别。
const CategoryAll = "all"

// Store 只读的故事模板仓库。
//
// 构造后不再修改，可被所有会话共享；所有查询都返回深拷贝，
// 调用方修改返回值不会影响仓库内部数据。
type Store struct {
	templates []model.StoryTemplate
	byID      map[string]int
}

// New 校验并收录模板，模板顺序即查询结果顺序。
func New(templates ...model.StoryTemplate) (*Store, error) {
	s := &Store{
		templates: make([]model.StoryTemplate, 0, len(templates)),
		byID:      make(map[string]int, len(templates)),
	}
	for _, t := range templates {
		if err := Validate(t); err != nil {
			return nil, err
		}
		if _, dup := s.byID[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate template id %q", ErrInvalidTemplate, t.ID)
		}
		s.byID[t.ID] = len(s.templates)
		s.templates = append(s.templates, cloneTemplate(t))
	}
	return s, nil
}

// NewBuiltin 使用编译期内置的故事目录。
func NewBuiltin() *Store {
	s, err := New(Builtin()...)
	if err != nil {
		// 内置数据由测试覆盖，这里失败属于编程错误。
		panic(fmt.Sprintf("builtin catalog: %v", err))
	}
	return s
}

// All 返回全部模板。
func (s *Store) All() []model.StoryTemplate {
	return s.filter(func(model.StoryTemplate) bool { return true })
}

// ByAge 返回适龄区间包含 age 的模板。
func (s *Store) ByAge(age int) []model.StoryTemplate {
	return s.filter(func(t model.StoryTemplate) bool { return t.AgeRange.Contains(age) })
}

// ByCategory 按类别过滤，"all" 返回全部。
func (s *Store) ByCategory(category string) []model.StoryTemplate {
	if category == CategoryAll {
		return s.All()
	}
	return s.filter(func(t model.StoryTemplate) bool { return string(t.Category) == category })
}

// ByType 按 static/dynamic 过滤。
func (s *Store) ByType(storyType model.StoryType) []model.StoryTemplate {
	return s.filter(func(t model.StoryTemplate) bool { return t.StoryType == storyType })
}

// ByID 查找模板。
func (s *Store) ByID(id string) (model.StoryTemplate, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return model.StoryTemplate{}, false
	}
	return cloneTemplate(s.templates[idx]), true
}

// Query 组合过滤条件，零值表示不过滤。API 与 CLI 共用。
type Query struct {
	Age       int
	Category  string
	StoryType model.StoryType
}

// Find 按 Query 过滤。
func (s *Store) Find(q Query) []model.StoryTemplate {
	return s.filter(func(t model.StoryTemplate) bool {
		if q.Age > 0 && !t.AgeRange.Contains(q.Age) {
			return false
		}
		if q.Category != "" && q.Category != CategoryAll && string(t.Category) != q.Category {
			return false
		}
		if q.StoryType != "" && t.StoryType != q.StoryType {
			return false
		}
		return true
	})
}

func (s *Store) filter(keep func(model.StoryTemplate) bool) []model.StoryTemplate {
	out := make([]model.StoryTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if keep(t) {
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

// Validate 检查模板的结构约束。
func Validate(t model.StoryTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTemplate)
	}
	if len(t.Milestones) == 0 {
		return fmt.Errorf("%w: %s has no milestones", ErrInvalidTemplate, t.ID)
	}
	if t.StoryType != model.StoryTypeStatic && t.StoryType != model.StoryTypeDynamic {
		return fmt.Errorf("%w: %s has unknown story type %q", ErrInvalidTemplate, t.ID, t.StoryType)
	}
	if t.AgeRange.Min > t.AgeRange.Max {
		return fmt.Errorf("%w: %s age range %d-%d", ErrInvalidTemplate, t.ID, t.AgeRange.Min, t.AgeRange.Max)
	}

	ids := make(map[string]struct{}, len(t.Milestones))
	for _, m := range t.Milestones {
		if _, dup := ids[m.ID]; dup {
			return fmt.Errorf("%w: %s duplicate milestone %q", ErrInvalidTemplate, t.ID, m.ID)
		}
		ids[m.ID] = struct{}{}
		if _, ok := m.Adaptations[model.MoodNeutral]; !ok {
			return fmt.Errorf("%w: %s/%s missing neutral adaptation", ErrInvalidTemplate, t.ID, m.ID)
		}
		if t.StoryType == model.StoryTypeStatic && len(m.Choices) > 0 {
			return fmt.Errorf("%w: static %s/%s carries choices", ErrInvalidTemplate, t.ID, m.ID)
		}
	}

	for _, m := range t.Milestones {
		for _, c := range m.Choices {
			if c.NextMilestone == "" {
				continue
			}
			if _, ok := ids[c.NextMilestone]; !ok {
				return fmt.Errorf("%w: %s/%s choice %q targets unknown milestone %q",
					ErrInvalidTemplate, t.ID, m.ID, c.ID, c.NextMilestone)
			}
		}
	}
	return nil
}

func cloneTemplate(t model.StoryTemplate) model.StoryTemplate {
	out := t
	out.Characters = append([]string(nil), t.Characters...)
	out.Settings = append([]string(nil), t.Settings...)
	out.EducationalContent = append([]string(nil), t.EducationalContent...)
	out.Milestones = make([]model.Milestone, len(t.Milestones))
	for i, m := range t.Milestones {
		cm := m
		cm.EmotionalTriggers = append([]string(nil), m.EmotionalTriggers...)
		cm.Adaptations = make(map[model.Mood]string, len(m.Adaptations))
		for k, v := range m.Adaptations {
			cm.Adaptations[k] = v
		}
		if m.Choices != nil {
			cm.Choices = append([]model.Choice(nil), m.Choices...)
		}
		out.Milestones[i] = cm
	}
	return out
}
