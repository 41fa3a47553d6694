package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchExpiringDecodesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/expiring" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "30" {
			t.Errorf("days = %s", r.URL.Query().Get("days"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"vin":"1HGBH41JXMN109186","document_id":"d1","category":"insurance","expiration_date":"2026-09-10","days_until":9,"urgency":"warning"},
			{"vin":"1HGBH41JXMN109186","document_id":"d2","category":"registration","expiration_date":"2026-08-20","days_until":-12,"urgency":"expired"}
		]`)
	}))
	defer srv.Close()

	s := &sweeper{
		cfg:  Config{APIURL: srv.URL, WindowDays: 30},
		http: &http.Client{Timeout: time.Second},
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	docs, err := s.fetchExpiring(context.Background())
	if err != nil {
		t.Fatalf("fetchExpiring: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[1].DaysUntil != -12 || string(docs[1].Urgency) != "expired" {
		t.Errorf("docs[1] = %+v", docs[1])
	}
}

func TestFetchExpiringRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &sweeper{
		cfg:  Config{APIURL: srv.URL, WindowDays: 30},
		http: &http.Client{Timeout: time.Second},
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if _, err := s.fetchExpiring(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
}
