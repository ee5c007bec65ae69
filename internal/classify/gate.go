// Package classify wraps the model-backed classifiers of the message
// pipeline: the topic gate, the emotion/urgency classifier, and the
// life-event extractor. Each classifier owns its prompt and its parsing,
// and reports failures per the policy in internal/faults.
package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/kindred/internal/faults"
	"github.com/user/kindred/pkg/llm"
)

const gateInstruction = `You are a topic classifier for a caring companion chatbot.

Determine if the message is in scope for an emotional-support companion:
IN SCOPE includes:
- Emotions and feelings (sad, happy, anxious, stressed, angry, excited, etc.)
- Mental health conditions and symptoms
- Life challenges, struggles, and personal issues
- Relationships, family, and social problems
- Work stress, school pressure, life changes
- Sleep, self-care, and wellness topics
- Personal growth, therapy, and healing
- Greetings and check-ins ("Hi", "Hello", "How are you?")
- Conversation continuity ("Do you remember me?", "We talked before")
- Any personal questions that could lead to emotional support
- Casual conversation that builds rapport

OUT OF SCOPE is limited to clearly unrelated factual, technical, or
commercial requests.

Respond EXACTLY in this format:
IN_SCOPE: YES/NO
CONFIDENCE: 0.1-1.0
REASON: [brief explanation]`

// GateResult is the topic gate's verdict on one message.
type GateResult struct {
	InScope    bool
	Confidence float64
	Reason     string
}

// Gate decides whether a message is in scope for the companion. It is
// deliberately permissive; only clearly unrelated requests gate out.
type Gate struct {
	provider llm.Provider
}

// NewGate creates a Gate backed by the given provider.
func NewGate(provider llm.Provider) *Gate {
	return &Gate{provider: provider}
}

// Check classifies the message. Malformed or missing classifier output is a
// *faults.ClassificationError; the caller applies its conservative default.
func (g *Gate) Check(ctx context.Context, text string) (*GateResult, error) {
	out, err := g.provider.Invoke(ctx, gateInstruction, []llm.Message{
		llm.User(fmt.Sprintf("Analyze this message: %q", text)),
	})
	if err != nil {
		return nil, &faults.ClassificationError{Stage: "topic gate", Cause: err}
	}
	return parseGateResult(out)
}

func parseGateResult(out string) (*GateResult, error) {
	var (
		inScope    *bool
		confidence *float64
		reason     *string
	)

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "IN_SCOPE:"):
			v := strings.Contains(strings.ToUpper(line), "YES")
			inScope = &v
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			c, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &faults.ClassificationError{
					Stage: "topic gate",
					Cause: fmt.Errorf("bad confidence %q", raw),
				}
			}
			c = min(max(c, 0.1), 1.0)
			confidence = &c
		case strings.HasPrefix(line, "REASON:"):
			r := strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
			reason = &r
		}
	}

	if inScope == nil || confidence == nil || reason == nil {
		return nil, &faults.ClassificationError{
			Stage: "topic gate",
			Cause: fmt.Errorf("incomplete classifier output"),
		}
	}
	return &GateResult{InScope: *inScope, Confidence: *confidence, Reason: *reason}, nil
}
