// Package context assembles the temporally annotated conversation context
// injected into reply generation. The assembler is what lets the generator
// produce time-aware replies without tracking time itself.
package context

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/kindred/internal/types"
)

// Engine assembles token-budgeted context blocks from stored history.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	budget    int
	recentN   int
	turns     types.TurnStore
	summaries types.SummaryStore
	loc       *time.Location
	now       func() time.Time
}

// New creates a context engine. model selects the tokenizer, budget is the
// token allowance for the whole context block, recentN caps how many turns
// are considered before budgeting.
func New(model string, budget, recentN int, turns types.TurnStore, summaries types.SummaryStore, loc *time.Location) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		budget:    budget,
		recentN:   recentN,
		turns:     turns,
		summaries: summaries,
		loc:       loc,
		now:       time.Now,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// RecentLimit is how many turns the engine wants from the caller.
func (e *Engine) RecentLimit() int { return e.recentN }

// Assemble builds the context block for one user: display name, wall clock,
// the prior day's summary when this is the first turn of the calendar day,
// and the last turns annotated with how long ago they happened. recent is
// the tail of the conversation, oldest first, typically prefetched with
// RecentLimit. Turns are trimmed oldest-first to fit the token budget.
func (e *Engine) Assemble(ctx context.Context, userID types.UserID, profile *types.Profile, recent []*types.Turn) (string, error) {
	now := e.now().In(e.loc)

	var b strings.Builder
	fmt.Fprintf(&b, "The person you are talking to prefers to be called %s.\n", profile.Name())
	fmt.Fprintf(&b, "Current time: %s.\n", now.Format("Monday, January 2 2006, 3:04 PM"))

	today, err := e.turns.ListDay(ctx, userID, types.DayKeyFor(now))
	if err != nil {
		return "", fmt.Errorf("list today's turns: %w", err)
	}
	if len(today) == 0 {
		if summary := e.priorSummary(ctx, userID, now); summary != "" {
			fmt.Fprintf(&b, "This is your first chat today. Summary of your previous conversation: %s\n", summary)
		}
	}

	header := b.String()
	remaining := e.budget - e.countTokens(header)

	// Newest turns are kept; older ones drop off when the budget runs out.
	var lines []string
	for i := len(recent) - 1; i >= 0; i-- {
		turn := recent[i]
		line := fmt.Sprintf("[%s] Them: %s | You: %s",
			TimeAgo(now, turn.Timestamp.In(e.loc)), turn.UserText, turn.ModelText)
		cost := e.countTokens(line)
		if cost > remaining {
			break
		}
		lines = append(lines, line)
		remaining -= cost
	}

	if len(lines) > 0 {
		b.WriteString("Recent conversation, oldest first:\n")
		for i := len(lines) - 1; i >= 0; i-- {
			b.WriteString(lines[i])
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// priorSummary returns the summary text of the most recent past day with
// conversation, or "" when there is none. Failures here degrade to an
// empty block; context assembly is best-effort.
func (e *Engine) priorSummary(ctx context.Context, userID types.UserID, now time.Time) string {
	days, err := e.turns.Days(ctx, userID)
	if err != nil || len(days) == 0 {
		return ""
	}

	todayKey := types.DayKeyFor(now)
	for i := len(days) - 1; i >= 0; i-- {
		if days[i] >= todayKey {
			continue
		}
		summary, err := e.summaries.Get(ctx, userID, days[i])
		if err != nil || summary == nil {
			return ""
		}
		return summary.SummaryText
	}
	return ""
}

// TimeAgo renders how long before now ts happened, in conversational terms.
func TimeAgo(now, ts time.Time) string {
	days := calendarDaysBetween(ts, now)
	switch {
	case days >= 2:
		return fmt.Sprintf("%d days ago", days)
	case days == 1:
		return "yesterday"
	}

	elapsed := now.Sub(ts)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	}
}

func calendarDaysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
