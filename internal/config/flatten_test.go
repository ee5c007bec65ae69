package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"llm": map[string]any{
			"provider": "openai",
			"api_key":  "sk-test123",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["llm.provider"] != "openai" {
		t.Errorf("expected llm.provider=openai, got %v", got["llm.provider"])
	}
	if got["llm.api_key"] != "sk-test123" {
		t.Errorf("expected llm.api_key=sk-test123, got %v", got["llm.api_key"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{},
	}
	got := Flatten(m)
	if len(got) != 0 {
		t.Errorf("expected 0 keys (empty nested map produces nothing), got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	flat := map[string]any{
		"llm.provider": "openai",
		"llm.api_key":  "sk-test123",
		"log_level":    "info",
	}
	got := Unflatten(flat)
	llm, ok := got["llm"].(map[string]any)
	if !ok {
		t.Fatalf("expected llm to be map, got %T", got["llm"])
	}
	if llm["provider"] != "openai" {
		t.Errorf("expected llm.provider=openai, got %v", llm["provider"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.kindred",
		"log_level": "debug",
		"llm": map[string]any{
			"provider": "openai",
			"api_key":  "sk-test123456",
			"model":    "gpt-4o",
		},
		"companion": map[string]any{
			"timezone":     "Local",
			"recent_turns": 10.0,
		},
		"telegram": map[string]any{
			"token": "bot-token-abc",
		},
	}

	flat := Flatten(original)
	restored := Unflatten(flat)

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}

	llm := restored["llm"].(map[string]any)
	origLLM := original["llm"].(map[string]any)
	if llm["api_key"] != origLLM["api_key"] {
		t.Errorf("llm.api_key mismatch: %v != %v", llm["api_key"], origLLM["api_key"])
	}

	companion := restored["companion"].(map[string]any)
	origCompanion := original["companion"].(map[string]any)
	if companion["recent_turns"] != origCompanion["recent_turns"] {
		t.Errorf("companion.recent_turns mismatch: %v != %v", companion["recent_turns"], origCompanion["recent_turns"])
	}

	tg := restored["telegram"].(map[string]any)
	origTg := original["telegram"].(map[string]any)
	if tg["token"] != origTg["token"] {
		t.Errorf("telegram.token mismatch: %v != %v", tg["token"], origTg["token"])
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"llm.provider":   "openai",
		"llm.api_key":    "sk-test123456",
		"telegram.token": "123456:ABCdefGHIjkl",
		"log_level":      "info",
	}
	got := MaskSecrets(flat)

	if got["llm.provider"] != "openai" {
		t.Errorf("expected llm.provider=openai, got %v", got["llm.provider"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if got["llm.api_key"] != "***3456" {
		t.Errorf("expected llm.api_key=***3456, got %v", got["llm.api_key"])
	}
	if got["telegram.token"] != "***Ijkl" {
		t.Errorf("expected telegram.token=***Ijkl, got %v", got["telegram.token"])
	}
}

func TestMaskSecrets_EmptyAndShort(t *testing.T) {
	flat := map[string]any{
		"llm.api_key":    "",
		"telegram.token": "abcd",
	}
	got := MaskSecrets(flat)
	if got["llm.api_key"] != "" {
		t.Errorf("expected empty string to remain empty, got %v", got["llm.api_key"])
	}
	if got["telegram.token"] != "***abcd" {
		t.Errorf("expected ***abcd for short secret, got %v", got["telegram.token"])
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("llm.api_key") {
		t.Error("llm.api_key should be secret")
	}
	if !IsSecretKey("telegram.token") {
		t.Error("telegram.token should be secret")
	}
	if IsSecretKey("log_level") {
		t.Error("log_level should not be secret")
	}
}
