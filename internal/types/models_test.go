package types

import (
	"testing"
	"time"
)

func TestNewEventIDDeterministic(t *testing.T) {
	a := NewEventID("exam", "alex@example.com", "2026-09-01", "I have an exam tomorrow")
	b := NewEventID("exam", "alex@example.com", "2026-09-01", "I have an exam tomorrow")
	if a != b {
		t.Errorf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char id, got %q", a)
	}
}

func TestNewEventIDVariesByField(t *testing.T) {
	base := NewEventID("exam", "alex@example.com", "2026-09-01", "exam tomorrow")
	cases := map[string]EventID{
		"type": NewEventID("interview", "alex@example.com", "2026-09-01", "exam tomorrow"),
		"user": NewEventID("exam", "sam@example.com", "2026-09-01", "exam tomorrow"),
		"date": NewEventID("exam", "alex@example.com", "2026-09-02", "exam tomorrow"),
		"desc": NewEventID("exam", "alex@example.com", "2026-09-01", "big exam tomorrow"),
	}
	for name, id := range cases {
		if id == base {
			t.Errorf("changing %s did not change the id", name)
		}
	}
}

func TestDayKeyRoundTrip(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 8, 31, 23, 15, 0, 0, loc)
	key := DayKeyFor(at)
	if key != "20260831" {
		t.Fatalf("expected 20260831, got %s", key)
	}
	back, err := key.Time(loc)
	if err != nil {
		t.Fatal(err)
	}
	if back.Year() != 2026 || back.Month() != 8 || back.Day() != 31 {
		t.Errorf("round trip mismatch: %v", back)
	}
}

func TestEventDate(t *testing.T) {
	ev := &Event{EventDate: "2026-09-02"}
	d, ok := ev.Date(time.UTC)
	if !ok {
		t.Fatal("expected a parsed date")
	}
	if d.Day() != 2 {
		t.Errorf("wrong day: %v", d)
	}

	if _, ok := (&Event{}).Date(time.UTC); ok {
		t.Error("undated event should report ok=false")
	}
	if _, ok := (&Event{EventDate: "soonish"}).Date(time.UTC); ok {
		t.Error("unparseable date should report ok=false")
	}
}

func TestProfileName(t *testing.T) {
	if got := (&Profile{DisplayName: "Alex"}).Name(); got != "Alex" {
		t.Errorf("got %q", got)
	}
	if got := (&Profile{}).Name(); got != "friend" {
		t.Errorf("default name: got %q", got)
	}
}

func TestValidateUserID(t *testing.T) {
	valid := []UserID{"ana@example.com", "bo", "user.name+tag@example.com"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("ValidateUserID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []UserID{"", "../../escaped", "a/b@example.com", `a\b@example.com`, "a..b"}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("ValidateUserID(%q) = nil, want error", id)
		}
	}
}
