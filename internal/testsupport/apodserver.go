package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"apodpipe/internal/record"
)

// APODServer serves a fixed set of entries the way the APOD API does.
type APODServer struct {
	*httptest.Server

	mu       sync.Mutex
	entries  map[string]record.Payload
	today    string
	requests int
	failures int
}

// NewAPODServer starts a server holding entries; the latest entry answers
// requests without a date. The server is closed on test cleanup.
func NewAPODServer(t testing.TB, entries ...record.Payload) *APODServer {
	t.Helper()
	s := &APODServer{entries: make(map[string]record.Payload, len(entries))}
	for _, e := range entries {
		s.entries[e.Date] = e
		if e.Date > s.today {
			s.today = e.Date
		}
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next n requests answer 503.
func (s *APODServer) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Requests returns the number of requests served.
func (s *APODServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *APODServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if r.URL.Path != "/planetary/apod" {
		http.NotFound(w, r)
		return
	}
	if s.failures > 0 {
		s.failures--
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": 503, "msg": "service unavailable"})
		return
	}
	query := r.URL.Query()
	if query.Get("api_key") == "" {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": map[string]string{"code": "API_KEY_MISSING", "message": "No api_key was supplied."},
		})
		return
	}

	if start, end := query.Get("start_date"), query.Get("end_date"); start != "" {
		var out []record.Payload
		for date, entry := range s.entries {
			if date >= start && (end == "" || date <= end) {
				out = append(out, entry)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		writeJSON(w, http.StatusOK, out)
		return
	}

	date := query.Get("date")
	if date == "" {
		date = s.today
	}
	entry, ok := s.entries[date]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "msg": "No data available for date: " + date})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Payload builds a plausible APOD entry for date.
func Payload(date string) record.Payload {
	return record.Payload{
		Date:        date,
		Title:       "Picture for " + date,
		URL:         "https://apod.nasa.gov/apod/image/" + date + ".jpg",
		HDURL:       "https://apod.nasa.gov/apod/image/" + date + "_hd.jpg",
		Explanation: "What is pictured on " + date + "?",
		MediaType:   "image",
		Copyright:   "Example Observatory",
	}
}
