package apod

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"apodpipe/internal/services"
)

// StatusError reports a non-200 response from the API.
type StatusError struct {
	StatusCode int
	Message    string
	Latency    time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("apod returned %d: %s (latency=%v)", e.StatusCode, e.Message, e.Latency)
	}
	return fmt.Sprintf("apod returned %d (latency=%v)", e.StatusCode, e.Latency)
}

// ErrorMarker classifies a client error into a services marker.
// Throttling, server errors, and transport failures are transient; a rejected
// key is a configuration problem; other client errors are deterministic.
func ErrorMarker(err error) error {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return services.ErrTransient
	}
	switch code := statusErr.StatusCode; {
	case code == http.StatusTooManyRequests || code >= 500:
		return services.ErrTransient
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.ErrConfiguration
	case code == http.StatusNotFound:
		return services.ErrNotFound
	default:
		return services.ErrValidation
	}
}

// errorMessage extracts the message from either the APOD error shape
// ({"code":400,"msg":"..."}) or the api.data.gov gateway shape
// ({"error":{"code":"...","message":"..."}}).
func errorMessage(body []byte) string {
	var payload struct {
		Msg   string `json:"msg"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	if msg := strings.TrimSpace(payload.Msg); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
		if payload.Error.Code != "" {
			return payload.Error.Code + ": " + msg
		}
		return msg
	}
	return ""
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
