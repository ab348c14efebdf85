package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendOverdueAlert_OK(t *testing.T) {
	var got message

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/notifications/overdue" {
			t.Fatalf("path = %s, want /api/notifications/overdue", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := client.SendOverdueAlert(ctx, 7, due, 150.50); err != nil {
		t.Fatalf("SendOverdueAlert error: %v", err)
	}

	if got.FarmerID != 7 {
		t.Fatalf("farmer_id = %d, want 7", got.FarmerID)
	}
	if got.Text == "" {
		t.Fatalf("expected non-empty alert text")
	}
}

func TestSendApprovalNotification_RetriesServerError(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.SendApprovalNotification(ctx, 1, 2, true, "ok"); err != nil {
		t.Fatalf("SendApprovalNotification error: %v", err)
	}

	if calls.Load() < 2 {
		t.Fatalf("calls = %d, want at least 2", calls.Load())
	}
}

func TestSend_NotConfigured(t *testing.T) {
	client := NewClient("")

	err := client.SendRepaymentReminder(context.Background(), 1, 2, 1, time.Now(), 10)
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
