package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apodpipe/internal/config"
	"apodpipe/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var requests []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRunFailed(context.Background(), "run", "load", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/apod"
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyRunCompleted(ctx, notifications.RunSummary{
		RunID:     "r1",
		Dates:     []string{"2024-01-01", "2024-01-03"},
		Inserted:  2,
		Skipped:   1,
		CSVRows:   40,
		Committed: true,
		Duration:  1500 * time.Millisecond,
	}); err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}
	if err := svc.NotifyRunFailed(ctx, "r2", "extract", errors.New("apod returned 503")); err != nil {
		t.Fatalf("NotifyRunFailed: %v", err)
	}

	tests := []captured{
		{
			title: "apodpipe - Run Complete",
			tags:  "apodpipe,run,completed",
			body:  "APOD 2024-01-01..2024-01-03: 2 inserted, 1 already present, 40 rows in CSV, metadata committed (2s)",
		},
		{
			title:    "apodpipe - Error",
			tags:     "apodpipe,error,alert",
			priority: "high",
			body:     "Run failed at extract: apod returned 503\nRun: r2",
		},
	}
	if len(*requests) != len(tests) {
		t.Fatalf("expected %d requests, got %d", len(tests), len(*requests))
	}
	for i, want := range tests {
		if got := (*requests)[i]; got != want {
			t.Fatalf("request %d mismatch:\n got: %+v\nwant: %+v", i, got, want)
		}
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.RunCompleted = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	_ = svc.NotifyRunCompleted(context.Background(), notifications.RunSummary{})
	_ = svc.NotifyRunFailed(context.Background(), "", "", nil)
	if len(*requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(*requests))
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected test notification to bypass toggles")
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
