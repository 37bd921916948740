package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joaohacker/creditpanel/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.Config{
		ProviderAPIKey:  "test-key",
		ProviderBaseURL: baseURL,
		RequestTimeout:  5 * time.Second,
	}, slog.Default())
}

func TestGetStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stock" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"code":200,"msg":"ok","data":{"credits_available":42000,"updated_at":"2026-08-01T10:00:00Z"}}`))
	}))
	defer srv.Close()

	stock, err := newTestClient(srv.URL).GetStock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stock.CreditsAvailable != 42000 {
		t.Fatalf("credits_available = %d, want 42000", stock.CreditsAvailable)
	}
}

func TestGetStockEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":401,"msg":"bad key"}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GetStock(context.Background()); err == nil {
		t.Fatal("expected error for non-200 envelope code")
	}
}

func TestGetHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GetStock(context.Background()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestListJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":200,"msg":"ok","data":[{"id":"j1","status":"running","credits":500,"started_at":"2026-08-01T10:00:00Z"}]}`))
	}))
	defer srv.Close()

	jobs, err := newTestClient(srv.URL).ListJobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" || jobs[0].Credits != 500 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestPollerRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/stock":
			w.Write([]byte(`{"code":200,"msg":"ok","data":{"credits_available":100,"updated_at":"2026-08-01T10:00:00Z"}}`))
		case "/api/v1/jobs":
			w.Write([]byte(`{"code":200,"msg":"ok","data":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPoller(newTestClient(srv.URL), time.Minute, slog.Default())
	if p.Snapshot() != nil {
		t.Fatal("snapshot should be nil before the first refresh")
	}

	p.refresh(context.Background())

	snap := p.Snapshot()
	if snap == nil {
		t.Fatal("snapshot still nil after refresh")
	}
	if snap.Stock.CreditsAvailable != 100 {
		t.Fatalf("credits_available = %d, want 100", snap.Stock.CreditsAvailable)
	}
	if snap.Jobs == nil || len(snap.Jobs) != 0 {
		t.Fatalf("jobs = %+v, want empty slice", snap.Jobs)
	}
}

func TestPollerKeepsLastGoodSnapshot(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case "/api/v1/stock":
			w.Write([]byte(`{"code":200,"msg":"ok","data":{"credits_available":7,"updated_at":"2026-08-01T10:00:00Z"}}`))
		case "/api/v1/jobs":
			w.Write([]byte(`{"code":200,"msg":"ok","data":[]}`))
		}
	}))
	defer srv.Close()

	p := NewPoller(newTestClient(srv.URL), time.Minute, slog.Default())
	p.refresh(context.Background())
	fail = true
	p.refresh(context.Background())

	snap := p.Snapshot()
	if snap == nil || snap.Stock.CreditsAvailable != 7 {
		t.Fatalf("snapshot = %+v, want last good stock of 7", snap)
	}
}
