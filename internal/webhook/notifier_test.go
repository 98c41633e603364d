package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNotifyDeliversPayload(t *testing.T) {
	var mu sync.Mutex
	var received []payload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
	}))
	defer server.Close()

	n := NewNotifier(server.URL)
	n.Notify(EventTrialIssued, map[string]interface{}{"user_id": "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.Wait(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(received))
	}
	if received[0].Event != EventTrialIssued {
		t.Errorf("expected event %q, got %q", EventTrialIssued, received[0].Event)
	}
	if received[0].Data["user_id"] != "u1" {
		t.Errorf("expected user_id u1, got %v", received[0].Data["user_id"])
	}
	if received[0].Timestamp == "" {
		t.Error("expected a timestamp")
	}
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	n := NewNotifier("")
	// Must not panic or block
	n.Notify(EventReferralRedeemed, map[string]interface{}{"code": "ABCD2345"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n.Wait(ctx)
}

func TestNotifySinkFailureDoesNotPropagate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(server.URL)
	n.Notify(EventUsageLimitReached, map[string]interface{}{"user_id": "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.Wait(ctx)
	// Reaching here without a panic or error is the assertion
}

func TestWaitHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	n := NewNotifier(server.URL)
	n.Notify(EventTrialRedeemed, map[string]interface{}{"user_id": "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	n.Wait(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Wait did not honor context deadline, took %v", elapsed)
	}
}
