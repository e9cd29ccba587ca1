package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if success, ok := body["success"].(bool); !ok || !success {
		t.Error("Expected success to be true")
	}
	if ts, ok := body["timestamp"].(string); !ok {
		t.Error("Expected timestamp to be present")
	} else if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", ts)
	}
	data, _ := body["data"].(map[string]any)
	if data["message"] != "hello" {
		t.Errorf("Expected message 'hello', got %v", data["message"])
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		message       string
		expectMessage string
	}{
		{name: "short message", message: "Invalid input", expectMessage: "Invalid input"},
		{name: "long message is truncated", message: strings.Repeat("x", 250), expectMessage: strings.Repeat("x", 200) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			respondJSONError(rec, http.StatusBadRequest, "Bad Request", tt.message)

			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if success, ok := body["success"].(bool); !ok || success {
				t.Error("Expected success to be false")
			}
			if body["error"] != "Bad Request" {
				t.Errorf("Expected error 'Bad Request', got '%v'", body["error"])
			}
			if body["message"] != tt.expectMessage {
				t.Errorf("Expected message %q, got %q", tt.expectMessage, body["message"])
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	type payload struct {
		Date string `json:"date" validate:"required,iso_date"`
	}

	tests := []struct {
		name         string
		body         string
		limit        int64
		expectOK     bool
		expectStatus int
	}{
		{name: "valid", body: `{"date":"2024-02-29"}`, expectOK: true},
		{name: "malformed json", body: `{"date":`, expectStatus: http.StatusBadRequest},
		{name: "failed validation", body: `{"date":"2023-02-29"}`, expectStatus: http.StatusBadRequest},
		{name: "too large", body: `{"date":"2024-02-29"}`, limit: 5, expectStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				req.Body = http.MaxBytesReader(rec, req.Body, tt.limit)
			}

			var p payload
			ok := decodeAndValidate(rec, req, &p)
			if ok != tt.expectOK {
				t.Fatalf("Expected ok=%v, got %v", tt.expectOK, ok)
			}
			if !ok && rec.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, rec.Code)
			}
		})
	}
}

func TestQueryWindow(t *testing.T) {
	t.Parallel()

	ref, _ := analytics.ParseDate("2024-01-10")

	tests := []struct {
		query       string
		expectStart string
		expectEnd   string
		expectErr   bool
	}{
		{query: "", expectStart: "2024-01-04", expectEnd: "2024-01-10"},
		{query: "?start=2024-01-01&end=2024-01-01", expectStart: "2024-01-01", expectEnd: "2024-01-01"},
		{query: "?end=2024-01-01", expectErr: true},
		{query: "?start=2024-01-02&end=2024-01-01", expectErr: true},
	}

	for _, tt := range tests {
		t.Run("window"+tt.query, func(t *testing.T) {
			t.Parallel()

			w, err := queryWindow(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), ref, 7)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if analytics.DateKey(w.Start) != tt.expectStart || analytics.DateKey(w.End) != tt.expectEnd {
				t.Errorf("Expected %s..%s, got %s..%s", tt.expectStart, tt.expectEnd, analytics.DateKey(w.Start), analytics.DateKey(w.End))
			}
		})
	}
}
