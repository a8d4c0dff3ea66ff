package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"apodpipe/internal/config"
)

const userAgent = "apodpipe/0.1.0"

// RunSummary is the subset of a finished run that notifications report.
type RunSummary struct {
	RunID     string
	Dates     []string
	Inserted  int
	Skipped   int
	CSVRows   int
	Committed bool
	Duration  time.Duration
}

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunFailed(ctx context.Context, runID, step string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runCompleted: cfg.Notifications.RunCompleted,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runCompleted bool
	errors       bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	if !n.runCompleted {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("APOD ")
	switch len(summary.Dates) {
	case 0:
		builder.WriteString("run")
	case 1:
		builder.WriteString(summary.Dates[0])
	default:
		fmt.Fprintf(&builder, "%s..%s", summary.Dates[0], summary.Dates[len(summary.Dates)-1])
	}
	fmt.Fprintf(&builder, ": %d inserted, %d already present, %d rows in CSV", summary.Inserted, summary.Skipped, summary.CSVRows)
	if summary.Committed {
		builder.WriteString(", metadata committed")
	}
	duration := summary.Duration.Round(time.Second)
	if duration > 0 {
		fmt.Fprintf(&builder, " (%s)", duration)
	}

	return n.send(ctx, payload{
		title:   "apodpipe - Run Complete",
		message: builder.String(),
		tags:    []string{"apodpipe", "run", "completed"},
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, runID, step string, err error) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Run failed")
	if step = strings.TrimSpace(step); step != "" {
		builder.WriteString(" at ")
		builder.WriteString(step)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	if runID = strings.TrimSpace(runID); runID != "" {
		builder.WriteString("\nRun: ")
		builder.WriteString(runID)
	}

	return n.send(ctx, payload{
		title:    "apodpipe - Error",
		message:  builder.String(),
		tags:     []string{"apodpipe", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "apodpipe - Test",
		message:  "Notification system test",
		tags:     []string{"apodpipe", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error        { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
