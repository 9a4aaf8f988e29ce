package narrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyteller/server/internal/model"
)

// DefaultPersona 模板未指定人设时使用。
const DefaultPersona = "friendly"

// maxContextLen 远端对 conversational_context 的长度约束。
const maxContextLen = 4000

var builtinPersonas = map[string]string{
	"friendly": `# Friendly Fox

## Profile
Warm, encouraging, and playful. Loves adventure stories and helping children learn.
Gentle and animated voice. Uses simple language and asks engaging questions.
`,
	"wise": `# Wise Owl

## Profile
Calm, wise, and educational. Perfect for bedtime stories and learning adventures.
Soothing and measured voice. Patient explanations and gentle guidance.
`,
	"calm": `# Sleepy Moon

## Profile
Quiet, soft, and reassuring. Speaks slowly with long gentle pauses.
Helps children wind down and feel safe before sleep.
`,
}

// Builder 根据故事模板与孩子信息构建远端数字人的会话上下文与开场白。
type Builder struct {
	promptsDir string
	personas   map[string]string
}

// Request 构建输入。
type Request struct {
	SessionID   string
	ChildName   string
	Template    model.StoryTemplate
	MaxDuration time.Duration
}

// Prompt 构建输出。
type Prompt struct {
	Context   string
	Greeting  string
	DebugInfo map[string]interface{}
}

// NewBuilder 创建 Builder。promptsDir 为空时只使用内置人设；
// 否则加载 promptsDir/personas/*.md 覆盖同名内置人设。
func NewBuilder(promptsDir string) (*Builder, error) {
	b := &Builder{
		promptsDir: promptsDir,
		personas:   make(map[string]string, len(builtinPersonas)),
	}
	for name, text := range builtinPersonas {
		b.personas[name] = text
	}
	if promptsDir == "" {
		return b, nil
	}
	if err := b.loadPersonas(); err != nil {
		return nil, fmt.Errorf("failed to load personas: %w", err)
	}
	return b, nil
}

func (b *Builder) loadPersonas() error {
	dir := filepath.Join(b.promptsDir, "personas")
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read personas dir: %w", err)
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(file.Name(), ".md")
		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return fmt.Errorf("read persona %s: %w", name, err)
		}
		b.personas[name] = string(content)
	}
	return nil
}

// Personas 已加载的人设名。
func (b *Builder) Personas() []string {
	out := make([]string, 0, len(b.personas))
	for name := range b.personas {
		out = append(out, name)
	}
	return out
}

// Build 构建会话上下文与开场白。
func (b *Builder) Build(req Request) (Prompt, error) {
	persona := req.Template.PersonaHint
	if persona == "" {
		persona = DefaultPersona
	}
	personaPrompt, ok := b.personas[persona]
	if !ok {
		return Prompt{}, fmt.Errorf("persona not found: %s", persona)
	}
	if len(req.Template.Milestones) == 0 {
		return Prompt{}, fmt.Errorf("template %s has no milestones", req.Template.ID)
	}

	p := Prompt{
		Context:  b.assembleContext(req, personaPrompt),
		Greeting: Greeting(req.ChildName, req.Template),
		DebugInfo: map[string]interface{}{
			"session_id":  req.SessionID,
			"template_id": req.Template.ID,
			"persona":     persona,
			"milestones":  len(req.Template.Milestones),
		},
	}
	return p, nil
}

func (b *Builder) assembleContext(req Request, personaPrompt string) string {
	var sb strings.Builder
	t := req.Template

	sb.WriteString("[Role Definition]\n")
	sb.WriteString(extractProfile(personaPrompt))
	sb.WriteString("\n")

	sb.WriteString("[Story]\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", t.Title))
	sb.WriteString(fmt.Sprintf("Listener: %s, age %d-%d\n", childOrFriend(req.ChildName), t.AgeRange.Min, t.AgeRange.Max))
	if t.Description != "" {
		sb.WriteString(fmt.Sprintf("Summary: %s\n", t.Description))
	}
	if len(t.Characters) > 0 {
		sb.WriteString(fmt.Sprintf("Characters: %s\n", strings.Join(t.Characters, ", ")))
	}
	if len(t.Settings) > 0 {
		sb.WriteString(fmt.Sprintf("Settings: %s\n", strings.Join(t.Settings, ", ")))
	}
	if t.MoralLesson != "" {
		sb.WriteString(fmt.Sprintf("Moral: %s\n", t.MoralLesson))
	}
	if len(t.EducationalContent) > 0 {
		sb.WriteString(fmt.Sprintf("Learning goals: %s\n", strings.Join(t.EducationalContent, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("[Milestones]\n")
	for i, m := range t.Milestones {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, m.Title, m.Description))
	}
	sb.WriteString("\n")

	sb.WriteString("[Safety Rules]\n")
	sb.WriteString("- Never describe violence, weapons, injuries or frightening details.\n")
	sb.WriteString("- Never ask the child to keep secrets or share personal information.\n")
	sb.WriteString("- If the child sounds upset, slow down and reassure them.\n")
	sb.WriteString("\n")

	sb.WriteString("[Constraints]\n")
	if req.MaxDuration > 0 {
		sb.WriteString(fmt.Sprintf("- The whole story must fit in %d minutes.\n", int(req.MaxDuration.Minutes())))
	}
	sb.WriteString("- Use short sentences a young child understands.\n")
	sb.WriteString("- End each turn with a simple question for the child.\n")
	if t.StoryType == model.StoryTypeDynamic {
		sb.WriteString("- When choices are offered, read them out and wait for the child to pick.\n")
	}

	return sb.String()
}

// Greeting 开场白。
func Greeting(childName string, t model.StoryTemplate) string {
	return fmt.Sprintf("Hi %s! I'm so happy to see you. Today we're going on a story called %s. Are you ready?",
		childOrFriend(childName), t.Title)
}

// ConversationName 远端会话名，格式 "<child> - <title>"。
func ConversationName(childName string, t model.StoryTemplate) string {
	return fmt.Sprintf("%s - %s", childOrFriend(childName), t.Title)
}

func childOrFriend(name string) string {
	if strings.TrimSpace(name) == "" {
		return "friend"
	}
	return name
}

// extractProfile 取人设文件 "## Profile" 段落；没有该段时取前几行非标题文本。
func extractProfile(prompt string) string {
	lines := strings.Split(prompt, "\n")
	var essence strings.Builder
	inProfile := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "## Profile") {
			inProfile = true
			continue
		}
		if inProfile {
			if strings.HasPrefix(line, "##") {
				break
			}
			if line != "" && !strings.HasPrefix(line, "#") {
				essence.WriteString(line)
				essence.WriteString("\n")
			}
		}
	}
	if essence.Len() == 0 {
		for i, line := range lines {
			if i >= 5 {
				break
			}
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				essence.WriteString(line)
				essence.WriteString("\n")
			}
		}
	}
	return essence.String()
}

// Validate 校验生成的上下文。
func (b *Builder) Validate(p Prompt) error {
	if len(p.Context) == 0 {
		return fmt.Errorf("empty context")
	}
	for _, section := range []string{"[Role Definition]", "[Story]", "[Milestones]", "[Safety Rules]", "[Constraints]"} {
		if !strings.Contains(p.Context, section) {
			return fmt.Errorf("missing required section: %s", section)
		}
	}
	if len(p.Context) > maxContextLen {
		return fmt.Errorf("context too long: %d > %d", len(p.Context), maxContextLen)
	}
	return nil
}

// BuildFallback 兜底上下文，只包含人设和安全规则。
func (b *Builder) BuildFallback(req Request) Prompt {
	ctx := fmt.Sprintf(`[Role Definition]
You are a kind storyteller for young children.

[Story]
Tell the story "%s" gently and simply.

[Milestones]
Follow the story from beginning to end.

[Safety Rules]
- Keep everything safe, friendly and age appropriate.

[Constraints]
- Use short sentences and end with a question.
`, req.Template.Title)

	return Prompt{
		Context:  ctx,
		Greeting: Greeting(req.ChildName, req.Template),
		DebugInfo: map[string]interface{}{
			"fallback": true,
		},
	}
}
