package context

import (
	"fmt"
	"strings"
)

const companionInstruction = `You are a caring companion who remembers the people you talk to. You listen like a close friend: warm, genuine, and present.

GUIDELINES:
- Use natural, friendly language like you're texting a close friend
- Reference relevant past conversations when they matter
- Match your tone to the person's actual emotional state
- Only escalate intensity when their urgency is high
- Include one or two thoughtful follow-up questions when it feels natural
- Never sound clinical or scripted`

// PromptInput carries everything the generation prompt needs beyond the
// base instruction.
type PromptInput struct {
	ContextBlock string // output of Engine.Assemble
	Emotion      string
	Urgency      int
	ToneGuidance string // tier guidance, empty for casual
	Greeting     string // proactive greeting to open with, may be empty
}

// BuildSystemPrompt renders the full system instruction for one reply.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString(companionInstruction)
	b.WriteString("\n\nCONVERSATION CONTEXT:\n")
	b.WriteString(in.ContextBlock)

	fmt.Fprintf(&b, "\nCURRENT STATE:\n- Detected emotion: %s\n- Urgency level: %d/5\n", in.Emotion, in.Urgency)
	if in.ToneGuidance != "" {
		fmt.Fprintf(&b, "\nTONE GUIDANCE: %s\n", in.ToneGuidance)
	}
	if in.Greeting != "" {
		fmt.Fprintf(&b, "\nStart your response with this caring follow-up: %q\n", in.Greeting)
	}
	return b.String()
}
