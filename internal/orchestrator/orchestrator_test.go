package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/kindred/internal/classify"
	convctx "github.com/user/kindred/internal/context"
	"github.com/user/kindred/internal/crisis"
	"github.com/user/kindred/internal/events"
	"github.com/user/kindred/internal/state"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/pkg/llm"
)

type fakeProvider struct {
	out   string
	err   error
	calls atomic.Int32
}

func (f *fakeProvider) Invoke(_ context.Context, _ string, _ []llm.Message) (string, error) {
	f.calls.Add(1)
	return f.out, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

const user = types.UserID("ana@example.com")

// fixture wires an orchestrator over real file stores with one scriptable
// fake provider per model-backed component.
type fixture struct {
	orch      *Orchestrator
	gateP     *fakeProvider
	emotionP  *fakeProvider
	extractP  *fakeProvider
	crisisP   *fakeProvider
	greetP    *fakeProvider
	generateP *fakeProvider
	eventSt   types.EventStore
	turns     *state.TurnStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	turns := state.NewTurnStore(root, time.UTC)
	eventSt := state.NewEventStore(root)
	summaries := state.NewSummaryStore(root)
	profiles := state.NewProfileStore(root)
	if err := profiles.Update(context.Background(), user, map[string]string{"display_name": "Ana"}); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		gateP:     &fakeProvider{out: "IN_SCOPE: YES\nCONFIDENCE: 0.9\nREASON: personal"},
		emotionP:  &fakeProvider{out: "EMOTION: neutral\nURGENCY: 1"},
		extractP:  &fakeProvider{out: `{"has_event": false, "confidence": 0.1}`},
		crisisP:   &fakeProvider{out: "Ana, call 988 or text HOME to 741741. If in danger call 911 or go to the emergency room."},
		greetP:    &fakeProvider{out: "How did the exam go?"},
		generateP: &fakeProvider{out: "I hear you, Ana."},
		eventSt:   eventSt,
		turns:     turns,
	}

	scheduler := events.NewScheduler(
		classify.NewExtractor(f.extractP), f.greetP, eventSt, time.UTC, discardLogger(),
	).WithClock(func() time.Time { return testNow })

	assembler, err := convctx.New("gpt-4o-mini", 4000, 20, turns, summaries, time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	f.orch = New(Config{
		Gate:      classify.NewGate(f.gateP),
		Emotions:  classify.NewEmotionClassifier(f.emotionP, discardLogger()),
		Scheduler: scheduler,
		Crisis:    crisis.NewResponder(f.crisisP, discardLogger()),
		Assembler: assembler,
		Provider:  f.generateP,
		Turns:     turns,
		Profiles:  profiles,
		Location:  time.UTC,
		Logger:    discardLogger(),
	})
	f.orch.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) respond(t *testing.T, message string) *Reply {
	t.Helper()
	reply, err := f.orch.Respond(context.Background(), user, message)
	if err != nil {
		t.Fatal(err)
	}
	return reply
}

func (f *fixture) persistedTurns(t *testing.T, reply *Reply) []*types.Turn {
	t.Helper()
	if err := reply.Persisted.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	turns, err := f.turns.ListDay(context.Background(), user, types.DayKeyFor(testNow))
	if err != nil {
		t.Fatal(err)
	}
	return turns
}

func TestRespondNormalPathStoresDetectedEvent(t *testing.T) {
	f := newFixture(t)
	f.emotionP.out = "EMOTION: anxious\nURGENCY: 3"
	f.extractP.out = `{"has_event": true, "event_type": "exam", "timing": "tomorrow", "confidence": 0.9}`

	reply := f.respond(t, "I have my final exam tomorrow and I'm freaking out")

	if reply.Text != "I hear you, Ana." {
		t.Errorf("unexpected reply %q", reply.Text)
	}
	if reply.Emotion != "anxious" || reply.Urgency != 3 {
		t.Errorf("classification not carried: %q/%d", reply.Emotion, reply.Urgency)
	}

	pending, err := f.eventSt.Pending(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Type != "exam" || pending[0].EventDate != "2026-03-03" {
		t.Fatalf("exam not stored: %+v", pending)
	}

	turns := f.persistedTurns(t, reply)
	if len(turns) != 1 || turns[0].Urgency != 3 {
		t.Fatalf("turn not persisted with urgency: %+v", turns)
	}
}

func TestRespondCrisisShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.emotionP.out = "EMOTION: depressed\nURGENCY: 5"

	reply := f.respond(t, "I have a plan to end it tonight")

	lower := strings.ToLower(reply.Text)
	for _, marker := range []string{"988", "741741", "911", "emergency room"} {
		if !strings.Contains(lower, marker) {
			t.Errorf("crisis reply missing %q", marker)
		}
	}

	if f.extractP.calls.Load() != 0 {
		t.Error("event detection must not run on the crisis branch")
	}
	if f.generateP.calls.Load() != 0 {
		t.Error("normal generation must not run on the crisis branch")
	}

	turns := f.persistedTurns(t, reply)
	if len(turns) != 1 || turns[0].Urgency != 5 {
		t.Fatalf("crisis turn not persisted: %+v", turns)
	}
}

func TestRespondUrgencyFourStaysOnNormalPath(t *testing.T) {
	f := newFixture(t)
	f.emotionP.out = "EMOTION: depressed\nURGENCY: 4"

	reply := f.respond(t, "everything is falling apart")

	if f.crisisP.calls.Load() != 0 {
		t.Error("crisis generator must only run at urgency 5")
	}
	if reply.Text != "I hear you, Ana." {
		t.Errorf("expected normal generation, got %q", reply.Text)
	}
}

func TestRespondOutOfScopeRedirectsAndPersists(t *testing.T) {
	f := newFixture(t)
	f.gateP.out = "IN_SCOPE: NO\nCONFIDENCE: 0.95\nREASON: tech support"
	f.emotionP.out = "EMOTION: neutral\nURGENCY: 1"

	reply := f.respond(t, "how do I configure my router?")

	if reply.Text != RedirectReply {
		t.Errorf("expected redirect, got %q", reply.Text)
	}
	if f.generateP.calls.Load() != 0 {
		t.Error("generation must not run out of scope")
	}

	turns := f.persistedTurns(t, reply)
	if len(turns) != 1 || turns[0].UserText != "how do I configure my router?" {
		t.Fatalf("out-of-scope turn must still persist: %+v", turns)
	}
	if turns[0].Emotion != "neutral" || turns[0].Urgency != 1 {
		t.Errorf("turn missing computed classification: %+v", turns[0])
	}
}

func TestRespondGateFailureDefaultsToOutOfScope(t *testing.T) {
	f := newFixture(t)
	f.gateP.out = "I'm not sure what you mean."

	reply := f.respond(t, "hello")
	if reply.Text != RedirectReply {
		t.Errorf("gate failure must apply the conservative default, got %q", reply.Text)
	}
}

func TestRespondMarksFollowUpOnlyAfterReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := &types.Event{
		ID: types.NewEventID("interview", user, "2026-03-02", "job interview"),
		Type: "interview", Description: "job interview",
		EventDate: "2026-03-02", MentionedAt: testNow.AddDate(0, 0, -1),
	}
	if _, err := f.eventSt.Upsert(ctx, user, event); err != nil {
		t.Fatal(err)
	}

	// Generation and apology both fail: the follow-up must survive.
	f.generateP.err = errors.New("model down")

	reply := f.respond(t, "hey")
	if reply.Text != staticApology {
		t.Errorf("expected static apology, got %q", reply.Text)
	}

	pending, err := f.eventSt.Pending(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatal("failed generation must not consume the follow-up opportunity")
	}

	// Once a real reply goes out, the event is consumed.
	f.generateP.err = nil
	f.respond(t, "hey again")

	pending, err = f.eventSt.Pending(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("follow-up not marked after a produced reply: %+v", pending)
	}
}

func TestRespondApologyFallbackChain(t *testing.T) {
	f := newFixture(t)
	f.generateP.err = errors.New("model down")

	reply := f.respond(t, "rough day")
	if reply.Text != staticApology {
		t.Errorf("expected static apology, got %q", reply.Text)
	}
	// Primary attempt plus personalized apology attempt.
	if f.generateP.calls.Load() != 2 {
		t.Errorf("expected 2 generation calls, got %d", f.generateP.calls.Load())
	}
}
