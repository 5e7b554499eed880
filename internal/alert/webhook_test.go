package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func init() {
	attemptBackoff = time.Millisecond
}

func TestSendDeliversMessage(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewWebhook(srv.URL).Send(context.Background(), "Job failed (ID: j1). Reason: boom")

	raw, _ := gotBody.Load().([]byte)
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal alert payload: %v", err)
	}
	if payload["content"] != "Job failed (ID: j1). Reason: boom" {
		t.Fatalf("unexpected alert content: %q", payload["content"])
	}
}

func TestSendRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewWebhook(srv.URL).Send(context.Background(), "flaky")

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestSendGivesUpAfterBoundedAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	// Must not panic or block; alert failure is swallowed.
	NewWebhook(srv.URL).Send(context.Background(), "doomed")

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestSendWithoutURLIsNoop(t *testing.T) {
	NewWebhook("").Send(context.Background(), "nowhere to go")
}
