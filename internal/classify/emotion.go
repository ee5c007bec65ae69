package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/user/kindred/pkg/llm"
)

// EmotionLabels is the closed set of emotions the classifier may return.
// Anything else degrades to "neutral".
var EmotionLabels = map[string]bool{
	"anxious":   true,
	"depressed": true,
	"angry":     true,
	"happy":     true,
	"stressed":  true,
	"lonely":    true,
	"confused":  true,
	"grateful":  true,
	"neutral":   true,
}

const emotionInstruction = `You are an emotion detection system for a caring companion chatbot. Analyze the user's message and determine:

1. PRIMARY EMOTION: exactly one of: anxious, depressed, angry, happy, stressed, lonely, confused, grateful, neutral
2. URGENCY LEVEL: rate from 1-5 based on how urgent the situation seems:

URGENCY LEVELS:
1 = Casual/Positive: good news, casual chat, mild stress, normal life updates
2 = Mild Concern: minor worries, everyday stress, slight sadness
3 = Moderate Distress: significant stress, relationship problems, work or school issues, moderate anxiety or depression
4 = High Distress: severe anxiety, major life crisis, intense emotional pain, non-suicidal thoughts of self-harm
5 = CRISIS: explicit imminent-danger language with a concrete plan, suicidal intent, emergency situation

IMPORTANT GUIDELINES:
- Most messages should be level 1-3. Only use 4-5 for genuinely serious situations.
- Do not over-dramatize normal stress or sadness. General sadness or passive ideation caps at level 3.
- Level 5 requires explicit imminent-danger language with a concrete plan.

Respond EXACTLY in this format:
EMOTION: [one label from the list]
URGENCY: [number 1-5]`

// EmotionClassifier labels each message with an emotion and an urgency tier.
// It never fails: any provider error or out-of-set answer degrades to
// ("neutral", 1) so the pipeline cannot block on this signal.
type EmotionClassifier struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewEmotionClassifier creates a classifier backed by the given provider.
func NewEmotionClassifier(provider llm.Provider, log *slog.Logger) *EmotionClassifier {
	return &EmotionClassifier{provider: provider, log: log}
}

// Classify returns the emotion label and urgency tier for the message.
func (c *EmotionClassifier) Classify(ctx context.Context, text string) (string, int) {
	out, err := c.provider.Invoke(ctx, emotionInstruction, []llm.Message{
		llm.User(fmt.Sprintf("Analyze this message for emotion and urgency: %q", text)),
	})
	if err != nil {
		c.log.Warn("emotion classification failed, using neutral", "error", err)
		return "neutral", 1
	}

	emotion, urgency := parseEmotion(out)
	return emotion, urgency
}

func parseEmotion(out string) (string, int) {
	emotion := "neutral"
	urgency := 1

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "EMOTION:"):
			label := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "EMOTION:")))
			if EmotionLabels[label] {
				emotion = label
			}
		case strings.HasPrefix(line, "URGENCY:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "URGENCY:"))
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 5 {
				urgency = n
			}
		}
	}
	return emotion, urgency
}
