package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/kindred/internal/types"
)

type backend struct {
	turns     types.TurnStore
	events    types.EventStore
	summaries types.SummaryStore
	profiles  types.ProfileStore
	users     types.UserDirectory
}

func fileBackend(t *testing.T) *backend {
	t.Helper()
	root := t.TempDir()
	return &backend{
		turns:     NewTurnStore(root, time.UTC),
		events:    NewEventStore(root),
		summaries: NewSummaryStore(root),
		profiles:  NewProfileStore(root),
		users:     NewDirectory(root),
	}
}

func sqliteBackend(t *testing.T) *backend {
	t.Helper()
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "kindred.db"), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return &backend{
		turns:     store,
		events:    store,
		summaries: store.Summaries(),
		profiles:  store.Profiles(),
		users:     store,
	}
}

func runBackends(t *testing.T, fn func(t *testing.T, b *backend)) {
	t.Run("file", func(t *testing.T) { fn(t, fileBackend(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, sqliteBackend(t)) })
}

func mkTurn(ts time.Time, text string) *types.Turn {
	return &types.Turn{
		ID:        types.NewTurnID(),
		UserText:  text,
		ModelText: "reply to " + text,
		Timestamp: ts,
		Emotion:   "neutral",
		Urgency:   1,
	}
}

func TestTurnStoreDayBuckets(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")

		day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		day2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		for i, ts := range []time.Time{day1, day1.Add(time.Hour), day2} {
			if err := b.turns.Append(ctx, user, mkTurn(ts, []string{"a", "b", "c"}[i])); err != nil {
				t.Fatal(err)
			}
		}

		days, err := b.turns.Days(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(days) != 2 || days[0] != "20260301" || days[1] != "20260302" {
			t.Fatalf("unexpected days %v", days)
		}

		got, err := b.turns.ListDay(ctx, user, "20260301")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].UserText != "a" || got[1].UserText != "b" {
			t.Fatalf("unexpected day bucket %+v", got)
		}
	})
}

func TestTurnStoreTailSpansDays(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		for i, text := range []string{"a", "b", "c", "d"} {
			turn := mkTurn(base.AddDate(0, 0, i/2).Add(time.Duration(i)*time.Minute), text)
			if err := b.turns.Append(ctx, user, turn); err != nil {
				t.Fatal(err)
			}
		}

		tail, err := b.turns.Tail(ctx, user, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(tail) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(tail))
		}
		for i, want := range []string{"b", "c", "d"} {
			if tail[i].UserText != want {
				t.Errorf("tail[%d] = %q, want %q", i, tail[i].UserText, want)
			}
		}
	})
}

func TestEventStoreUpsertIdempotent(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")
		event := &types.Event{
			ID:          types.NewEventID("interview", user, "2026-03-05", "job interview"),
			Type:        "interview",
			Description: "job interview",
			EventDate:   "2026-03-05",
			MentionedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		}

		created, err := b.events.Upsert(ctx, user, event)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Fatal("first upsert should create")
		}

		created, err = b.events.Upsert(ctx, user, event)
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Fatal("second upsert should be a no-op")
		}

		all, err := b.events.List(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 {
			t.Fatalf("expected 1 event, got %d", len(all))
		}
	})
}

func TestEventStorePendingOrder(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")
		mentioned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		add := func(typ, desc, date string, done bool) types.EventID {
			id := types.NewEventID(typ, user, date, desc)
			_, err := b.events.Upsert(ctx, user, &types.Event{
				ID: id, Type: typ, Description: desc, EventDate: date,
				MentionedAt: mentioned, Completed: done,
			})
			if err != nil {
				t.Fatal(err)
			}
			return id
		}

		add("appointment", "dentist", "2026-03-10", false)
		add("interview", "job interview", "2026-03-05", false)
		add("other", "thinking about a move", "", false)
		add("exam", "final exam", "2026-03-02", true)

		pending, err := b.events.Pending(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 3 {
			t.Fatalf("expected 3 pending, got %d", len(pending))
		}
		if pending[0].Description != "job interview" || pending[1].Description != "dentist" {
			t.Errorf("wrong order: %q then %q", pending[0].Description, pending[1].Description)
		}
		if pending[2].EventDate != "" {
			t.Errorf("undated event should sort last, got %q", pending[2].EventDate)
		}
	})
}

func TestEventStoreCompleteAndDelete(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")
		id := types.NewEventID("interview", user, "2026-03-05", "job interview")
		_, err := b.events.Upsert(ctx, user, &types.Event{
			ID: id, Type: "interview", Description: "job interview",
			EventDate: "2026-03-05", MentionedAt: time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}

		if err := b.events.Complete(ctx, user, id); err != nil {
			t.Fatal(err)
		}
		// Completing again stays completed without error.
		if err := b.events.Complete(ctx, user, id); err != nil {
			t.Fatal(err)
		}

		pending, err := b.events.Pending(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 0 {
			t.Fatalf("completed event still pending: %+v", pending)
		}

		if err := b.events.Delete(ctx, user, id); err != nil {
			t.Fatal(err)
		}
		// Deleting a missing event is a no-op.
		if err := b.events.Delete(ctx, user, id); err != nil {
			t.Fatal(err)
		}

		all, err := b.events.List(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 0 {
			t.Fatalf("expected empty store, got %d events", len(all))
		}
	})
}

func TestSummaryStoreWriteOnce(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")
		summary := &types.DailySummary{
			Date:         "20260301",
			SummaryText:  "talked about work stress",
			EmotionTrend: []string{"stressed", "anxious"},
			AvgUrgency:   2.5,
			MessageCount: 4,
		}

		if err := b.summaries.Put(ctx, user, summary); err != nil {
			t.Fatal(err)
		}
		if err := b.summaries.Put(ctx, user, summary); err == nil {
			t.Fatal("second put for the same day should fail")
		}

		got, err := b.summaries.Get(ctx, user, "20260301")
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.SummaryText != summary.SummaryText {
			t.Fatalf("unexpected summary %+v", got)
		}

		missing, err := b.summaries.Get(ctx, user, "20260302")
		if err != nil {
			t.Fatal(err)
		}
		if missing != nil {
			t.Fatalf("expected nil for absent day, got %+v", missing)
		}
	})
}

func TestProfileStoreDefaultsAndAllowList(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()
		user := types.UserID("ana@example.com")

		profile, err := b.profiles.Get(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if profile.Name() != "friend" {
			t.Errorf("default name = %q, want friend", profile.Name())
		}

		err = b.profiles.Update(ctx, user, map[string]string{"display_name": "Ana"})
		if err != nil {
			t.Fatal(err)
		}

		err = b.profiles.Update(ctx, user, map[string]string{"favorite_color": "blue"})
		if err == nil {
			t.Fatal("unknown field should be rejected")
		}

		profile, err = b.profiles.Get(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if profile.DisplayName != "Ana" {
			t.Errorf("display name = %q", profile.DisplayName)
		}
	})
}

func TestDirectoryListsUsers(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()

		for _, user := range []types.UserID{"bo@example.com", "ana@example.com"} {
			if err := b.profiles.Update(ctx, user, map[string]string{"display_name": "x"}); err != nil {
				t.Fatal(err)
			}
		}

		users, err := b.users.Users(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 2 || users[0] != "ana@example.com" || users[1] != "bo@example.com" {
			t.Fatalf("unexpected users %v", users)
		}
	})
}

func TestStoresRejectPathUserIDs(t *testing.T) {
	runBackends(t, func(t *testing.T, b *backend) {
		ctx := context.Background()

		for _, user := range []types.UserID{"", "../../escaped", "a/b@example.com", `a\b@example.com`, "a..b"} {
			if err := b.profiles.Update(ctx, user, map[string]string{"display_name": "x"}); err == nil {
				t.Errorf("profile update accepted user id %q", user)
			}
			if _, err := b.profiles.Get(ctx, user); err == nil {
				t.Errorf("profile get accepted user id %q", user)
			}
			if err := b.turns.Append(ctx, user, mkTurn(time.Now(), "hi")); err == nil {
				t.Errorf("turn append accepted user id %q", user)
			}
			if _, err := b.events.Upsert(ctx, user, &types.Event{ID: "abc", Type: "exam"}); err == nil {
				t.Errorf("event upsert accepted user id %q", user)
			}
			if err := b.summaries.Put(ctx, user, &types.DailySummary{Date: "20260301"}); err == nil {
				t.Errorf("summary put accepted user id %q", user)
			}
		}
	})
}

func TestFileStoreConfinedToRoot(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	root := filepath.Join(parent, "data")

	profiles := NewProfileStore(root)
	if err := profiles.Update(ctx, "../../escaped", map[string]string{"display_name": "x"}); err == nil {
		t.Fatal("expected traversal id to be rejected")
	}

	if _, err := os.Stat(filepath.Join(parent, "escaped")); !os.IsNotExist(err) {
		t.Fatal("profile written outside the data root")
	}
}
