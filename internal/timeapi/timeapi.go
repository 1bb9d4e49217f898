// Package timeapi fetches the current wall-clock time from an external
// time service. The reminder scheduler and the .time command both use
// it instead of the local clock, so the bot reports and fires in the
// deployment's configured timezone regardless of where the process
// runs. A fallback endpoint covers primary outages; there is no retry
// beyond that.
package timeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/durkdan/messenger-gpt/internal/config"
	"github.com/durkdan/messenger-gpt/internal/httpkit"
)

// requestTimeout bounds a single time-source call. The .time command
// runs on the request path, so this must stay short.
const requestTimeout = 5 * time.Second

// ErrUnavailable reports that neither the primary nor the fallback
// endpoint produced a usable timestamp.
var ErrUnavailable = errors.New("timeapi: no time source available")

// Client queries the primary endpoint and falls back to the secondary
// on any failure.
type Client struct {
	primaryURL  string
	fallbackURL string
	loc         *time.Location
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient builds a time source client from configuration. Empty URL
// overrides select the public worldtimeapi.org and timeapi.io
// endpoints for the configured timezone.
func NewClient(cfg config.TimeAPIConfig, logger *slog.Logger) *Client {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", tz, "error", err)
		loc = time.UTC
	}

	primary := cfg.PrimaryURL
	if primary == "" {
		primary = "https://worldtimeapi.org/api/timezone/" + tz
	}
	fallback := cfg.FallbackURL
	if fallback == "" {
		fallback = "https://timeapi.io/api/time/current/zone?timeZone=" + url.QueryEscape(tz)
	}

	return &Client{
		primaryURL:  primary,
		fallbackURL: fallback,
		loc:         loc,
		httpClient:  httpkit.NewClient(httpkit.WithTimeout(requestTimeout)),
		logger:      logger,
	}
}

// timePayload is the tolerant union of the field names the public time
// APIs use for the current timestamp.
type timePayload struct {
	DateTime     string `json:"datetime"` // worldtimeapi.org
	DateTimeCaps string `json:"dateTime"` // timeapi.io
	UTCDateTime  string `json:"utc_datetime"`
}

// Now returns the current time as reported by the primary endpoint, or
// the fallback if the primary fails. Both failing returns an error
// wrapping ErrUnavailable; callers decide whether that skips a
// scheduler tick or becomes a fixed failure reply.
func (c *Client) Now(ctx context.Context) (time.Time, error) {
	ts, primaryErr := c.fetch(ctx, c.primaryURL)
	if primaryErr == nil {
		return ts, nil
	}
	c.logger.Debug("primary time source failed, trying fallback",
		"url", c.primaryURL,
		"error", primaryErr,
	)

	ts, fallbackErr := c.fetch(ctx, c.fallbackURL)
	if fallbackErr == nil {
		return ts, nil
	}

	return time.Time{}, fmt.Errorf("%w: primary: %v; fallback: %v",
		ErrUnavailable, primaryErr, fallbackErr)
}

func (c *Client) fetch(ctx context.Context, endpoint string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("status %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256))
	}

	var payload timePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return time.Time{}, fmt.Errorf("decode response: %w", err)
	}

	raw := payload.DateTime
	if raw == "" {
		raw = payload.DateTimeCaps
	}
	if raw == "" {
		raw = payload.UTCDateTime
	}
	if raw == "" {
		return time.Time{}, errors.New("response has no timestamp field")
	}

	return c.parse(raw)
}

// parse accepts RFC 3339 timestamps and the zoneless variant
// timeapi.io returns, interpreting the latter in the configured zone.
func (c *Client) parse(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.In(c.loc), nil
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", raw, c.loc); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
