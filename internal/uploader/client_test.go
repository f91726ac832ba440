package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roadlog/internal/gps"
	"roadlog/internal/storage"
)

func storedFix(at time.Time) storage.StoredFix {
	speed := 12.5
	battery := 64.0
	return storage.StoredFix{
		ID:      1,
		TripID:  "trip-1",
		Fix:     gps.Fix{Lat: 43.65, Lon: -79.38, Accuracy: 8, Speed: &speed, Time: at},
		Battery: &battery,
	}
}

func TestUploadFixes(t *testing.T) {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	var gotPath, gotAuth string
	var gotBody uploadRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL}
	err := c.UploadFixes(context.Background(), "tok-1", "remote-9", []storage.StoredFix{storedFix(at)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotPath != "/trips/remote-9/locations" {
		t.Fatalf("wrong path %q", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("wrong auth header %q", gotAuth)
	}
	if len(gotBody.Fixes) != 1 {
		t.Fatalf("expected 1 fix in payload, got %d", len(gotBody.Fixes))
	}
	f := gotBody.Fixes[0]
	if f.Lat != 43.65 || f.Lon != -79.38 {
		t.Fatalf("wrong coordinates in payload: %+v", f)
	}
	if f.Battery == nil || *f.Battery != 64.0 {
		t.Fatalf("wrong battery in payload: %v", f.Battery)
	}
	if f.RecordedAt != "2026-05-04T12:00:00Z" {
		t.Fatalf("wrong timestamp %q", f.RecordedAt)
	}
}

func TestUploadFixesEmptyBatch(t *testing.T) {
	c := &Client{BaseURL: "http://example.invalid"}
	if err := c.UploadFixes(context.Background(), "tok", "remote", nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
}

func TestUploadFixesMissingCredentials(t *testing.T) {
	c := &Client{BaseURL: "http://example.invalid"}
	fixes := []storage.StoredFix{storedFix(time.Now())}
	if err := c.UploadFixes(context.Background(), "", "remote", fixes); err == nil {
		t.Fatalf("expected error without token")
	}
	if err := c.UploadFixes(context.Background(), "tok", "", fixes); err == nil {
		t.Fatalf("expected error without remote trip id")
	}
}

func TestUploadFixesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &Client{BaseURL: server.URL}
	err := c.UploadFixes(context.Background(), "tok", "remote", []storage.StoredFix{storedFix(time.Now())})
	if err == nil {
		t.Fatalf("expected error for 429")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("wrong status %d", apiErr.StatusCode)
	}
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit classification")
	}
	if IsAuth(err) {
		t.Fatalf("429 is not an auth failure")
	}
}

func TestIsAuth(t *testing.T) {
	if !IsAuth(&APIError{StatusCode: http.StatusUnauthorized}) {
		t.Fatalf("401 should classify as auth")
	}
	if !IsAuth(&APIError{StatusCode: http.StatusForbidden}) {
		t.Fatalf("403 should classify as auth")
	}
	if IsAuth(errors.New("plain")) {
		t.Fatalf("plain errors are not auth failures")
	}
}
