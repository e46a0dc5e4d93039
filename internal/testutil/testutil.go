// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

// SetupStore opens a migrated in-memory SQLite store closed at test end
func SetupStore(t *testing.T) *storage.Store {
	t.Helper()

	s, err := storage.Open(context.Background(), "sqlite3", ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// CreateGuest inserts a guest invited to events and returns it with its token
func CreateGuest(t *testing.T, s *storage.Store, first, last, email string, events ...models.Event) *models.Guest {
	t.Helper()

	g := &models.Guest{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Token:     uuid.NewString(),
	}
	for _, e := range events {
		g.InvitedTo.Set(e, true)
	}
	if err := s.CreateGuest(context.Background(), g); err != nil {
		t.Fatalf("Failed to create test guest: %v", err)
	}
	return g
}

// MakeRequest creates an HTTP test request with an optional JSON body
func MakeRequest(method, path string, body any, headers map[string]string) *http.Request {
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case io.Reader:
		req = httptest.NewRequest(method, path, b)
	default:
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// Envelope is the JSON wrapper every API response uses
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details []string        `json:"details"`
}

// DecodeEnvelope decodes the response envelope and, when data is non-nil,
// its data field into data
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) Envelope {
	t.Helper()

	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode JSON response: %v. Body: %s", err, w.Body.String())
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("Failed to decode data: %v. Body: %s", err, w.Body.String())
		}
	}
	return env
}
