package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProberStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		wantOK bool
	}{
		{"200 is live", http.StatusOK, true},
		{"204 is live", http.StatusNoContent, true},
		{"404 is dead", http.StatusNotFound, false},
		{"500 is dead", http.StatusInternalServerError, false},
		{"503 is dead", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewHTTPProber("/health", time.Second)
			err := p.Probe(context.Background(), srv.URL)
			if (err == nil) != tt.wantOK {
				t.Errorf("Probe = %v, want ok=%v", err, tt.wantOK)
			}
			if gotPath != "/health" {
				t.Errorf("probe path = %q", gotPath)
			}
		})
	}
}

func TestHTTPProberUnreachable(t *testing.T) {
	p := NewHTTPProber("/health", 200*time.Millisecond)
	// Nothing listens here.
	if err := p.Probe(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Error("probe of unreachable endpoint succeeded")
	}
}

func TestHTTPProberTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProber("/health", 50*time.Millisecond)
	start := time.Now()
	if err := p.Probe(context.Background(), srv.URL); err == nil {
		t.Error("slow probe succeeded within timeout")
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("probe was not bounded: took %v", elapsed)
	}
}
