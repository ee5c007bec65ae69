// Package events implements life-event detection, storage, and proactive
// follow-up. Detected events carry a deterministic id so re-detection of
// the same event on the same day is a no-op rather than a duplicate.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/kindred/internal/classify"
	"github.com/user/kindred/internal/faults"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/pkg/llm"
)

const greetingInstruction = `You are a caring friend who remembers important events in people's lives. Generate a warm, personalized greeting that asks about an important event.

GUIDELINES:
- Be genuinely caring and show you remember the event
- Use natural, friendly language like you're texting a close friend
- Show appropriate emotion (excitement, concern, encouragement) for the event type
- Keep it conversational and warm, not formal
- Reference the timing naturally

TIMING MEANINGS:
- "today": the event happens or happened today, ask how it went or how they feel
- "yesterday": the event happened yesterday, follow up on how it went
- "in N days": the event is upcoming, check how they're feeling about it

Generate ONE natural, caring greeting message.`

// Scheduler detects events in messages and raises them proactively while
// they are inside the follow-up window (yesterday, today, or the next two
// days).
type Scheduler struct {
	extractor *classify.Extractor
	provider  llm.Provider
	store     types.EventStore
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a Scheduler. The store holds detected events; the
// provider phrases proactive greetings.
func NewScheduler(extractor *classify.Extractor, provider llm.Provider, store types.EventStore, loc *time.Location, log *slog.Logger) *Scheduler {
	return &Scheduler{
		extractor: extractor,
		provider:  provider,
		store:     store,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the scheduler's clock. Used by tests and callers
// that replay a fixed day.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Detect extracts an event from the message and upserts it. Returns nil
// when the message carries no confident event. Extraction schema failures
// propagate as *faults.ClassificationError for the caller to absorb.
func (s *Scheduler) Detect(ctx context.Context, userID types.UserID, message string) (*types.Event, error) {
	ext, err := s.extractor.Extract(ctx, message)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, nil
	}

	now := s.now().In(s.loc)
	var eventDate string
	if date, ok := ParseRelativeDate(ext.Timing, message, now); ok {
		eventDate = date.Format(types.EventDateLayout)
	}

	event := &types.Event{
		ID:          types.NewEventID(ext.EventType, userID, eventDate, message),
		Type:        ext.EventType,
		Description: message,
		EventDate:   eventDate,
		MentionedAt: now,
	}

	created, err := s.store.Upsert(ctx, userID, event)
	if err != nil {
		return nil, &faults.StoreError{Op: "event upsert", Cause: err}
	}
	if !created {
		s.log.Debug("event already known", "user", userID, "event", event.ID)
	}
	return event, nil
}

// ProactiveGreeting returns a warm check-in about the first pending event
// inside the follow-up window, along with the event itself so the caller
// can mark it followed up after the reply is actually produced. Returns
// ("", nil, nil) when no event is eligible.
func (s *Scheduler) ProactiveGreeting(ctx context.Context, userID types.UserID, name string) (string, *types.Event, error) {
	pending, err := s.store.Pending(ctx, userID)
	if err != nil {
		return "", nil, &faults.StoreError{Op: "event pending list", Cause: err}
	}

	now := s.now().In(s.loc)
	for _, event := range pending {
		bucket, ok := WindowBucket(event, now)
		if !ok {
			continue
		}
		return s.greet(ctx, event, name, bucket), event, nil
	}
	return "", nil, nil
}

// MarkFollowedUp records that the event was raised in a reply. Calling it
// again for the same event changes nothing.
func (s *Scheduler) MarkFollowedUp(ctx context.Context, userID types.UserID, id types.EventID) error {
	if err := s.store.Complete(ctx, userID, id); err != nil {
		return &faults.StoreError{Op: "event complete", Cause: err}
	}
	return nil
}

func (s *Scheduler) greet(ctx context.Context, event *types.Event, name, bucket string) string {
	prompt := fmt.Sprintf(
		"Generate a caring greeting for %s about their %s (%s). Event description: %q",
		name, event.Type, bucket, event.Description)

	out, err := s.provider.Invoke(ctx, greetingInstruction, []llm.Message{llm.User(prompt)})
	if err != nil {
		s.log.Warn("greeting generation failed, using template", "error", err)
		return s.templateGreeting(event, name, bucket)
	}

	greeting := strings.TrimSpace(out)
	greeting = strings.Trim(greeting, `"`)
	if greeting == "" {
		return s.templateGreeting(event, name, bucket)
	}
	return greeting
}

func (s *Scheduler) templateGreeting(event *types.Event, name, bucket string) string {
	if bucket == "today" || bucket == "yesterday" {
		return fmt.Sprintf("Hey %s! How did your %s %s?", name, event.Type, describeWindow(bucket))
	}
	return fmt.Sprintf("Hey %s! How are you feeling about your upcoming %s?", name, event.Type)
}
