package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/user/kindred/pkg/llm"
)

func completionBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestInvokeSendsSystemAndTurns(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []llm.Message `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("hey there")))
	}))
	defer srv.Close()

	client := New(&llm.Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini"})
	out, err := client.Invoke(context.Background(), "be kind", []llm.Message{llm.User("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hey there" {
		t.Errorf("got reply %q", out)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "be kind" {
		t.Errorf("system message not first: %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" {
		t.Errorf("user turn missing: %+v", captured.Messages[1])
	}
}

func TestInvokeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionBody("recovered")))
	}))
	defer srv.Close()

	client := New(&llm.Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	client.retry = &llm.RetryPolicy{MaxAttempts: 2, InitialDelay: 1, Multiplier: 1, MaxDelay: 1}

	out, err := client.Invoke(context.Background(), "", []llm.Message{llm.User("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered" {
		t.Errorf("got %q", out)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestInvokeDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(&llm.Config{BaseURL: srv.URL, APIKey: "bad", Model: "m"})
	client.retry = &llm.RetryPolicy{MaxAttempts: 3, InitialDelay: 1, Multiplier: 1, MaxDelay: 1}

	if _, err := client.Invoke(context.Background(), "", []llm.Message{llm.User("hi")}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("auth error should not retry, got %d calls", calls.Load())
	}
}
