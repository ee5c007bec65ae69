// Package orchestrator sequences one message through the full pipeline:
// concurrent lookups, topic gating, crisis escalation, event handling,
// context assembly, reply generation, and background persistence.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/kindred/internal/classify"
	convctx "github.com/user/kindred/internal/context"
	"github.com/user/kindred/internal/crisis"
	"github.com/user/kindred/internal/events"
	"github.com/user/kindred/internal/faults"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/pkg/llm"
)

// RedirectReply is the fixed utterance returned for out-of-scope messages.
const RedirectReply = "That's outside what I can help with, but I'm always here to talk about you and how you're doing. What's on your mind?"

// staticApology is the last-resort reply when both generation and the
// personalized apology fail.
const staticApology = "Hey, I'm having trouble putting my thoughts together right now, but I'm still here for you. Can you tell me a bit more about how you're feeling?"

const apologyInstruction = `You are a caring companion whose systems just had trouble processing a message. Respond in a way that:

1. Maintains the caring, supportive relationship
2. Acknowledges their message without revealing any technical error
3. Provides meaningful emotional support anyway
4. Encourages them to continue the conversation

Don't mention technical errors. Just be present for them.`

// Reply is the outcome of one message. Persisted resolves when the turn has
// been durably recorded; latency-sensitive callers may discard it.
type Reply struct {
	Text      string
	Timestamp time.Time
	Emotion   string
	Urgency   int
	Persisted *PersistHandle
}

// PersistHandle is an awaitable background persistence task.
type PersistHandle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the write finishes or ctx is done.
func (h *PersistHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Orchestrator owns the message pipeline. All collaborators are injected so
// tests can substitute fakes.
type Orchestrator struct {
	gate      *classify.Gate
	emotions  *classify.EmotionClassifier
	scheduler *events.Scheduler
	crisis    *crisis.Responder
	assembler *convctx.Engine
	provider  llm.Provider
	turns     types.TurnStore
	profiles  types.ProfileStore
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
}

// Config bundles the orchestrator's collaborators.
type Config struct {
	Gate      *classify.Gate
	Emotions  *classify.EmotionClassifier
	Scheduler *events.Scheduler
	Crisis    *crisis.Responder
	Assembler *convctx.Engine
	Provider  llm.Provider
	Turns     types.TurnStore
	Profiles  types.ProfileStore
	Location  *time.Location
	Logger    *slog.Logger
}

// New creates an Orchestrator from its collaborators.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		gate:      cfg.Gate,
		emotions:  cfg.Emotions,
		scheduler: cfg.Scheduler,
		crisis:    cfg.Crisis,
		assembler: cfg.Assembler,
		provider:  cfg.Provider,
		turns:     cfg.Turns,
		profiles:  cfg.Profiles,
		loc:       cfg.Location,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// Respond runs the pipeline for one user message and returns the reply.
func (o *Orchestrator) Respond(ctx context.Context, userID types.UserID, message string) (*Reply, error) {
	var (
		profile    *types.Profile
		gateResult *classify.GateResult
		gateErr    error
		emotion    string
		urgency    int
		recent     []*types.Turn
	)

	// The four read-only lookups have no ordering dependency; run them
	// together and join before any branching.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := o.profiles.Get(gctx, userID)
		if err != nil {
			o.log.Warn("profile fetch failed, using default",
				"error", &faults.StoreError{Op: "profile get", Cause: err})
			p = &types.Profile{ID: userID}
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		gateResult, gateErr = o.gate.Check(gctx, message)
		return nil
	})
	g.Go(func() error {
		emotion, urgency = o.emotions.Classify(gctx, message)
		return nil
	})
	g.Go(func() error {
		turns, err := o.turns.Tail(gctx, userID, o.assembler.RecentLimit())
		if err != nil {
			o.log.Warn("recent turn fetch failed",
				"error", &faults.StoreError{Op: "turn tail", Cause: err})
			return nil
		}
		recent = turns
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Gate failure means "cannot determine"; the conservative default is
	// out-of-scope, never a guess.
	if gateErr != nil {
		o.log.Warn("topic gate failed, treating as out of scope", "error", gateErr)
	}
	if gateErr != nil || !gateResult.InScope {
		return o.finish(ctx, userID, message, RedirectReply, emotion, urgency), nil
	}

	// Tier 5 is terminal: no event handling, no greeting, generation
	// awaited inline.
	if urgency == 5 {
		text := o.crisis.Respond(ctx, profile.Name(), message)
		return o.finish(ctx, userID, message, text, emotion, urgency), nil
	}

	// The greeting scan runs before detection so an event mentioned in this
	// very message is not immediately raised back at the user.
	greeting, pendingEvent, err := o.scheduler.ProactiveGreeting(ctx, userID, profile.Name())
	if err != nil {
		o.log.Warn("proactive greeting failed", "user", userID, "error", err)
		greeting, pendingEvent = "", nil
	}

	if _, err := o.scheduler.Detect(ctx, userID, message); err != nil {
		// Detection faults are absorbed here; the conversation goes on.
		o.log.Warn("event detection failed", "user", userID, "error", err)
	}

	text, generated := o.generate(ctx, userID, profile, message, emotion, urgency, greeting, recent)

	// Only a produced reply consumes the follow-up opportunity.
	if generated && pendingEvent != nil {
		if err := o.scheduler.MarkFollowedUp(ctx, userID, pendingEvent.ID); err != nil {
			o.log.Warn("mark followed up failed", "user", userID, "event", pendingEvent.ID, "error", err)
		}
	}

	return o.finish(ctx, userID, message, text, emotion, urgency), nil
}

// generate produces the normal-path reply. The second return reports
// whether the primary generation succeeded, as opposed to an apology.
func (o *Orchestrator) generate(
	ctx context.Context,
	userID types.UserID,
	profile *types.Profile,
	message, emotion string,
	urgency int,
	greeting string,
	recent []*types.Turn,
) (string, bool) {
	block, err := o.assembler.Assemble(ctx, userID, profile, recent)
	if err != nil {
		o.log.Warn("context assembly failed, generating without history", "user", userID, "error", err)
		block = fmt.Sprintf("The person you are talking to prefers to be called %s.\n", profile.Name())
	}

	system := convctx.BuildSystemPrompt(convctx.PromptInput{
		ContextBlock: block,
		Emotion:      emotion,
		Urgency:      urgency,
		ToneGuidance: crisis.Guidance(crisis.TierFor(urgency)),
		Greeting:     greeting,
	})

	out, err := o.provider.Invoke(ctx, system, []llm.Message{llm.User(message)})
	if err == nil {
		if out = strings.TrimSpace(out); out != "" {
			return out, true
		}
		err = fmt.Errorf("empty completion")
	}

	o.log.Error("reply generation failed", "user", userID,
		"error", &faults.GenerationError{Cause: err})
	return o.apologize(ctx, profile.Name(), message, emotion, urgency), false
}

// apologize tries a personalized apology via a second model call, then the
// static apology. This is the only place a fault becomes user-visible, and
// only as on-brand text.
func (o *Orchestrator) apologize(ctx context.Context, name, message, emotion string, urgency int) string {
	prompt := fmt.Sprintf(
		"Generate a supportive response for %s who said %q (detected emotion: %s, urgency: %d/5).",
		name, message, emotion, urgency)

	out, err := o.provider.Invoke(ctx, apologyInstruction, []llm.Message{llm.User(prompt)})
	if err != nil || strings.TrimSpace(out) == "" {
		return staticApology
	}
	return strings.TrimSpace(out)
}

// finish builds the Reply and kicks off background persistence. The turn is
// recorded with the computed emotion and urgency on every branch, including
// redirects and crisis replies, so the relationship memory stays unbroken.
func (o *Orchestrator) finish(ctx context.Context, userID types.UserID, message, text, emotion string, urgency int) *Reply {
	ts := o.now().In(o.loc)
	turn := &types.Turn{
		ID:        types.NewTurnID(),
		UserText:  message,
		ModelText: text,
		Timestamp: ts,
		Emotion:   emotion,
		Urgency:   urgency,
	}

	handle := &PersistHandle{done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		// Detached from the request context: the reply is already on its
		// way to the user.
		if err := o.turns.Append(context.WithoutCancel(ctx), userID, turn); err != nil {
			handle.err = &faults.StoreError{Op: "turn append", Cause: err}
			o.log.Error("turn persistence failed", "user", userID, "error", handle.err)
		}
	}()

	return &Reply{
		Text:      text,
		Timestamp: ts,
		Emotion:   emotion,
		Urgency:   urgency,
		Persisted: handle,
	}
}
