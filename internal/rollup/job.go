// Package rollup implements the timer-driven daily batch: per user it
// produces the proactive greeting and notification text, clears surfaced
// events, and writes the day-level conversation summary.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/kindred/internal/events"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/pkg/llm"
)

const notificationInstruction = `You are a caring friend sending a short check-in notification. Generate a SHORT notification (maximum 15 words) in this style:

"[Name], [first concern question]? [second supportive question]??"

GUIDELINES:
- Always ask 2 short questions, both ending with "?" (second one with "??").
- Keep total length under 15 words.
- Warm, supportive, checking in with care.

EXAMPLES:
- "Alex, how was class today? Feeling better now??"
- "Sarah, was chemistry easier? Less stress this time??"`

const summaryInstruction = `You are a caring friend creating simple conversation summaries to help remember what you talked about with someone. Write in a natural, friendly tone like you're taking notes to remember for next time.`

// Result is what one rollup run produces for a user.
type Result struct {
	Greeting     string
	Notification string
}

// Job runs the daily rollup for a single user.
type Job struct {
	scheduler *events.Scheduler
	events    types.EventStore
	turns     types.TurnStore
	summaries types.SummaryStore
	profiles  types.ProfileStore
	provider  llm.Provider
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
}

// NewJob wires a rollup job against the given stores and provider.
func NewJob(
	scheduler *events.Scheduler,
	eventStore types.EventStore,
	turns types.TurnStore,
	summaries types.SummaryStore,
	profiles types.ProfileStore,
	provider llm.Provider,
	loc *time.Location,
	log *slog.Logger,
) *Job {
	return &Job{
		scheduler: scheduler,
		events:    eventStore,
		turns:     turns,
		summaries: summaries,
		profiles:  profiles,
		provider:  provider,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// RunForUser executes the three rollup steps for one user: greeting and
// notification text, cleanup of surfaced events, and the write-once summary
// of the most recent past conversation day. Running it twice for the same
// day produces exactly one summary.
func (j *Job) RunForUser(ctx context.Context, userID types.UserID) (*Result, error) {
	profile, err := j.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	name := profile.Name()

	greeting, event, err := j.scheduler.ProactiveGreeting(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("proactive greeting: %w", err)
	}
	if event != nil {
		if err := j.scheduler.MarkFollowedUp(ctx, userID, event.ID); err != nil {
			j.log.Warn("mark followed up failed", "user", userID, "event", event.ID, "error", err)
		}
	}

	if err := j.clearSurfacedEvents(ctx, userID); err != nil {
		j.log.Warn("event cleanup failed", "user", userID, "error", err)
	}

	notification := j.notificationText(ctx, userID, name)

	if err := j.summarizeLastDay(ctx, userID); err != nil {
		j.log.Warn("daily summary failed", "user", userID, "error", err)
	}

	return &Result{Greeting: greeting, Notification: notification}, nil
}

// clearSurfacedEvents deletes events that have already been raised with the
// user. Pending events stay for a later window.
func (j *Job) clearSurfacedEvents(ctx context.Context, userID types.UserID) error {
	all, err := j.events.List(ctx, userID)
	if err != nil {
		return err
	}
	for _, event := range all {
		if !event.Completed {
			continue
		}
		if err := j.events.Delete(ctx, userID, event.ID); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) notificationText(ctx context.Context, userID types.UserID, name string) string {
	fallbackText := fmt.Sprintf("Hey %s, missing you. Are you feeling okay??", name)

	recent, err := j.turns.Tail(ctx, userID, 10)
	if err != nil || len(recent) == 0 {
		return fallbackText
	}

	now := j.now().In(j.loc)
	last := recent[len(recent)-1].Timestamp.In(j.loc)
	hoursSince := now.Sub(last).Hours()

	var situation string
	switch {
	case hoursSince < 24:
		situation = fmt.Sprintf("%s has been away for %d hours after chatting earlier today", name, int(hoursSince))
	case hoursSince < 48:
		situation = fmt.Sprintf("%s has been away since yesterday", name)
	default:
		situation = fmt.Sprintf("%s hasn't been active since %s", name, last.Format("January 2"))
	}

	var convo strings.Builder
	for _, turn := range recent {
		fmt.Fprintf(&convo, "User: %s\nAssistant: %s\n", turn.UserText, turn.ModelText)
	}

	prompt := fmt.Sprintf("Create a check-in notification for %s.\n\nSITUATION: %s\n\nRECENT CONVERSATION:\n%s",
		name, situation, convo.String())

	out, err := j.provider.Invoke(ctx, notificationInstruction, []llm.Message{llm.User(prompt)})
	if err != nil {
		j.log.Warn("notification generation failed, using template", "user", userID, "error", err)
		return fallbackText
	}
	if out = strings.Trim(strings.TrimSpace(out), `"`); out == "" {
		return fallbackText
	}
	return out
}

// summarizeLastDay writes the summary for the most recent day with turns,
// but only when that day is strictly past and has no summary yet.
func (j *Job) summarizeLastDay(ctx context.Context, userID types.UserID) error {
	days, err := j.turns.Days(ctx, userID)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return nil
	}

	lastDay := days[len(days)-1]
	todayKey := types.DayKeyFor(j.now().In(j.loc))
	if lastDay >= todayKey {
		return nil
	}

	existing, err := j.summaries.Get(ctx, userID, lastDay)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	turns, err := j.turns.ListDay(ctx, userID, lastDay)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	summary := j.buildSummary(ctx, lastDay, turns)
	if summary == nil {
		return nil
	}
	return j.summaries.Put(ctx, userID, summary)
}

func (j *Job) buildSummary(ctx context.Context, day types.DayKey, turns []*types.Turn) *types.DailySummary {
	var (
		convo    strings.Builder
		emotions []string
		seen     = map[string]bool{}
		urgency  int
	)
	for _, turn := range turns {
		fmt.Fprintf(&convo, "user: %s\nassistant: %s\n", turn.UserText, turn.ModelText)
		if turn.Emotion != "" && !seen[turn.Emotion] {
			seen[turn.Emotion] = true
			emotions = append(emotions, turn.Emotion)
		}
		urgency += turn.Urgency
	}

	prompt := fmt.Sprintf(`Summarize this conversation between a user and their supportive companion:

CONVERSATION:
%s
Create a friendly summary that covers:
1. What the user talked about and how they were feeling
2. Main topics or concerns they shared
3. Any positive moments or progress they mentioned
4. Important things to remember for next time you chat
5. How they seemed to be feeling by the end

Keep it simple and conversational, under 120 words, written like "User talked about..." or "They seemed...".`, convo.String())

	text, err := j.provider.Invoke(ctx, summaryInstruction, []llm.Message{llm.User(prompt)})
	if err != nil {
		// Not critical for chat functionality; the day stays unsummarized
		// and a later run retries.
		j.log.Warn("summary generation failed", "day", day, "error", err)
		return nil
	}

	return &types.DailySummary{
		Date:         day,
		SummaryText:  strings.TrimSpace(text),
		EmotionTrend: emotions,
		AvgUrgency:   float64(urgency) / float64(len(turns)),
		MessageCount: len(turns) * 2,
	}
}
