package progression

import (
	"fmt"
	"strings"
)

// positiveKeywords 值得正向强化的词。
var positiveKeywords = []string{
	"happy", "fun", "excited", "love", "friend", "help", "kind", "brave", "smart",
	"adventure", "magic", "wonderful", "amazing", "beautiful", "safe",
}

// ContextualReply 对孩子的发言给出一句角色内回应，发给远端数字人让它接话。
// 优先级：正向词 > 提问 > 害怕 > 无聊/困 > 默认鼓励。
func ContextualReply(utterance string) string {
	lower := strings.ToLower(utterance)

	for _, w := range positiveKeywords {
		if strings.Contains(lower, w) {
			return fmt.Sprintf("I love that you mentioned %s! That's exactly the spirit of our story. Let's see what happens next...", w)
		}
	}

	if strings.Contains(lower, "what") || strings.Contains(lower, "why") || strings.Contains(lower, "how") {
		return "That's a great question! Let me show you what happens next in our story..."
	}

	if strings.Contains(lower, "scared") || strings.Contains(lower, "afraid") {
		return "Don't worry, everything in our story is safe and friendly. Let's continue with something gentle and fun..."
	}

	if strings.Contains(lower, "boring") || strings.Contains(lower, "tired") {
		return "Let's make this more exciting! Something amazing is about to happen..."
	}

	return "I hear you! Let's see what our story characters do next..."
}
