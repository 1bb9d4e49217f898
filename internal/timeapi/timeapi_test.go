package timeapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/durkdan/messenger-gpt/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, primary, fallback string) *Client {
	t.Helper()
	return NewClient(config.TimeAPIConfig{
		Timezone:    "Asia/Singapore",
		PrimaryURL:  primary,
		FallbackURL: fallback,
	}, discard())
}

func TestNow_Primary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"datetime":"2026-01-05T07:30:00.000000+08:00"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "http://127.0.0.1:0")
	ts, err := c.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if ts.Weekday() != time.Monday || ts.Hour() != 7 || ts.Minute() != 30 {
		t.Errorf("parsed %v, want Monday 07:30", ts)
	}
}

func TestNow_FallbackOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer primary.Close()

	// Zoneless timeapi.io-style payload, interpreted in the configured zone.
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dateTime":"2026-01-05T07:30:00.123"}`))
	}))
	defer fallback.Close()

	c := newTestClient(t, primary.URL, fallback.URL)
	ts, err := c.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if ts.Weekday() != time.Monday || ts.Hour() != 7 || ts.Minute() != 30 {
		t.Errorf("parsed %v, want Monday 07:30", ts)
	}
}

func TestNow_BothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	_, err := c.Now(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestNow_MissingTimestampField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unrelated":"field"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	if _, err := c.Now(context.Background()); err == nil {
		t.Fatal("expected error for payload without timestamp")
	}
}
