// Package msgraph is a thin Microsoft Graph REST client covering the user
// and calendar resources the assistant reads and writes. Authentication is
// per call: every method takes the bearer token to use, so one client
// serves all connected users.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/claudia-labs/claudia/internal/availability"
	"github.com/claudia-labs/claudia/internal/instrumentation"
	"github.com/claudia-labs/claudia/internal/logging"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const requestTimeout = 30 * time.Second

// Client issues requests against Microsoft Graph.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Graph client with default pacing and timeouts.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: requestTimeout},
		limiter: NewRateLimiter(),
		logger:  logger,
	}
}

// SetBaseURL overrides the Graph endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetMetrics attaches a metrics recorder. Without one, Graph calls are not
// recorded.
func (c *Client) SetMetrics(m *instrumentation.Metrics) {
	c.metrics = m
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.get(ctx, accessToken, "me", "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CalendarView returns the user's events between start and end, ordered by
// start time. Recurring events are expanded into their instances, which is
// why the calendar view is used instead of the raw events collection.
func (c *Client) CalendarView(ctx context.Context, accessToken string, start, end time.Time) ([]Event, error) {
	query := url.Values{
		"startDateTime": {start.UTC().Format(time.RFC3339)},
		"endDateTime":   {end.UTC().Format(time.RFC3339)},
		"$select":       {"subject,start,end"},
		"$orderby":      {"start/dateTime"},
		"$top":          {"100"},
	}

	var events []Event
	path := "/me/calendarView"
	for {
		var page eventList
		if err := c.get(ctx, accessToken, "calendar_view", path+"?"+query.Encode(), &page,
			header{"Prefer", `outlook.timezone="UTC"`}); err != nil {
			return nil, err
		}
		events = append(events, page.Value...)

		if page.NextLink == "" {
			return events, nil
		}
		next, err := url.Parse(page.NextLink)
		if err != nil {
			return nil, fmt.Errorf("parse next page link: %w", err)
		}
		path = next.Path
		query = next.Query()
	}
}

// BusyIntervals returns the user's events in the window as busy intervals
// for the availability engine.
func (c *Client) BusyIntervals(ctx context.Context, accessToken string, start, end time.Time) ([]availability.Interval, error) {
	events, err := c.CalendarView(ctx, accessToken, start, end)
	if err != nil {
		return nil, err
	}

	intervals := make([]availability.Interval, 0, len(events))
	for _, ev := range events {
		s, err := ev.Start.Time()
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.Subject, err)
		}
		e, err := ev.End.Time()
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.Subject, err)
		}
		intervals = append(intervals, availability.Interval{Start: s, End: e})
	}
	return intervals, nil
}

// CreateEvent creates an event on the user's default calendar and returns
// it as stored by Graph.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, input EventInput) (*Event, error) {
	var created Event
	if err := c.post(ctx, accessToken, "create_event", "/me/events", input, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

type header struct {
	key, value string
}

func (c *Client) get(ctx context.Context, accessToken, op, path string, out any, extra ...header) error {
	return c.do(ctx, accessToken, op, http.MethodGet, path, nil, out, extra...)
}

func (c *Client) post(ctx context.Context, accessToken, op, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, accessToken, op, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, accessToken, op, method, path string, body []byte, out any, extra ...header) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range extra {
		req.Header.Set(h.key, h.value)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordGraphOperation(ctx, op, logging.StatusError, time.Since(started))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	status := logging.StatusSuccess
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status = logging.StatusError
	}
	c.metrics.RecordGraphOperation(ctx, op, status, time.Since(started))

	c.logger.DebugContext(ctx, "graph request",
		logging.Operation("graph_request"),
		slog.String("method", method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration(logging.KeyDuration, time.Since(started)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordThrottle(retryAfter(resp))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, method, req.URL.Path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
