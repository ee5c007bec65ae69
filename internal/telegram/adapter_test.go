package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageShort(t *testing.T) {
	parts := splitMessage("hello")
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != "hello" {
		t.Errorf("part = %q", parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	text := strings.Repeat("a", maxTelegramMessage*2+100)
	parts := splitMessage(text)

	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("first part length = %d", len(parts[0]))
	}
	if len(parts[2]) != 100 {
		t.Errorf("last part length = %d", len(parts[2]))
	}

	var total int
	for _, p := range parts {
		total += len(p)
	}
	if total != len(text) {
		t.Errorf("parts total %d, want %d", total, len(text))
	}
}

func TestAddress(t *testing.T) {
	if got := Address(12345); got != "telegram:12345" {
		t.Errorf("Address(12345) = %q", got)
	}
	if got := Address(-42); got != "telegram:-42" {
		t.Errorf("Address(-42) = %q", got)
	}
}
