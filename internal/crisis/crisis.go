// Package crisis implements the urgency-tier escalation policy and the
// tier-5 response path. The tier-5 branch is the highest-stakes path in the
// system: it must always produce a reply carrying the emergency resources,
// no matter what fails.
package crisis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/kindred/internal/faults"
	"github.com/user/kindred/pkg/llm"
)

// Tier is the escalation level derived from a message's urgency.
type Tier string

const (
	TierCasual   Tier = "casual"   // urgency 1-2
	TierModerate Tier = "moderate" // urgency 3
	TierHigh     Tier = "high"     // urgency 4
	TierCrisis   Tier = "crisis"   // urgency 5, terminal branch
)

// TierFor maps an urgency level onto its escalation tier.
func TierFor(urgency int) Tier {
	switch {
	case urgency <= 2:
		return TierCasual
	case urgency == 3:
		return TierModerate
	case urgency == 4:
		return TierHigh
	default:
		return TierCrisis
	}
}

// Guidance returns the tone guidance injected into the generation prompt
// for the non-terminal tiers.
func Guidance(tier Tier) string {
	switch tier {
	case TierCasual:
		return "Be supportive but relaxed. Don't overreact. Match their energy level."
	case TierModerate:
		return "Show more concern and support. Ask deeper questions but stay calm."
	case TierHigh:
		return "Use an intensified protective tone. Show you are genuinely worried and fighting for them."
	default:
		return ""
	}
}

// resourceMarkers are the substrings every crisis reply must contain.
var resourceMarkers = []string{"988", "741741", "911", "emergency room"}

const responseInstruction = `You are a caring friend responding to someone in severe emotional crisis. Generate a compassionate, urgent, but caring crisis intervention response that:

1. IMMEDIATELY shows deep concern for them
2. Acknowledges their pain without minimizing it
3. Includes essential crisis resources (MUST include these exactly):
   - Call 988 (Suicide & Crisis Lifeline) - Available 24/7
   - Text HOME to 741741 (Crisis Text Line)
   - Call 911 if in immediate danger
   - Go to nearest emergency room
4. Emphasizes their value and that people care about them
5. Shows urgency about getting help TODAY
6. Uses their name naturally and personally

TONE GUIDELINES:
- Be passionately protective, like fighting for a family member
- Be direct and urgent but not clinical
- Make it personal

STRUCTURE:
- Start with immediate, caring concern that uses their name
- Acknowledge their crisis and pain
- List the crisis resources clearly (use the exact format above)
- End with a personal, urgent plea for them to reach out TODAY`

// fallback is the hard-coded reply used whenever generation fails or the
// generated text is missing a required resource.
func fallback(name string) string {
	return fmt.Sprintf(`%s, I'm genuinely worried about you right now. You reached out, which means part of you is still fighting, and I'm not letting go of that.

Please reach out to someone who can help immediately:
- Call 988 (Suicide & Crisis Lifeline) - Available 24/7
- Text HOME to 741741 (Crisis Text Line)
- Call 911 if you're in immediate danger
- Go to your nearest emergency room

%s, please promise me you'll reach out to one of these today. Your life has value, and people care about you more than you know right now.`, name, name)
}

// Responder produces the tier-5 reply.
type Responder struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewResponder creates a Responder backed by the given provider.
func NewResponder(provider llm.Provider, log *slog.Logger) *Responder {
	return &Responder{provider: provider, log: log}
}

// Respond generates the crisis reply for the message. The returned text
// always contains the four emergency resources: a generated reply missing
// any of them, or a failed generation, yields the hard-coded fallback.
// This path never returns an empty reply.
func (r *Responder) Respond(ctx context.Context, name, message string) string {
	out, err := r.provider.Invoke(ctx, responseInstruction, []llm.Message{
		llm.User(fmt.Sprintf("Generate a crisis intervention response for %s who said: %q", name, message)),
	})
	if err != nil {
		r.log.Error("crisis generation failed, using static fallback",
			"error", &faults.CrisisPathError{Cause: err})
		return fallback(name)
	}

	out = strings.TrimSpace(out)
	if out == "" || !containsResources(out) {
		r.log.Warn("crisis reply missing required resources, using static fallback")
		return fallback(name)
	}
	return out
}

func containsResources(reply string) bool {
	lower := strings.ToLower(reply)
	for _, marker := range resourceMarkers {
		if !strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
