package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetInvoiceStatus_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/invoices/inv-1" {
			t.Fatalf("path = %s, want /api/invoices/inv-1", r.URL.Path)
		}

		resp := InvoiceStatus{
			Invoice: "inv-1",
			Status:  "paid",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetInvoiceStatus(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceStatus error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.Invoice != "inv-1" || res.Status != "paid" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetInvoiceStatus_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetInvoiceStatus(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceStatus error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry != 5*time.Second {
		t.Fatalf("retryAfter = %v, want 5s", retry)
	}
}

func TestGetInvoiceStatus_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, _, err := client.GetInvoiceStatus(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceStatus error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 204, got %+v", res)
	}
	if code != http.StatusNoContent {
		t.Fatalf("status code = %d, want %d", code, http.StatusNoContent)
	}
}

func TestGetInvoiceStatus_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(InvoiceStatus{Invoice: "inv-1", Status: "pending"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, code, _, err := client.GetInvoiceStatus(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoiceStatus error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if res == nil || res.Status != "pending" {
		t.Fatalf("unexpected response: %+v", res)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected a retry after 500, got %d calls", calls.Load())
	}
}

func TestGetInvoiceStatus_NotConfigured(t *testing.T) {
	var client *Client

	_, _, _, err := client.GetInvoiceStatus(context.Background(), "inv-1")
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}
