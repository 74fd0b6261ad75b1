// Package client talks to a running daemon over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/momentcast/internal/types"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Client is a thin JSON client for the daemon.
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no overall timeout; event streams stay open.
	stream *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
		stream:  &http.Client{},
	}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health checks that the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) CreateSession(ctx context.Context, sourceURL string) (*types.SessionRecord, error) {
	var rec types.SessionRecord
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"source_url": sourceURL}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Ingest(ctx context.Context, id types.SessionID, text string) (types.Decision, error) {
	var resp struct {
		Decision types.Decision `json:"decision"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(string(id))+"/paragraphs",
		map[string]string{"text": text}, &resp)
	return resp.Decision, err
}

type momentEnvelope struct {
	Moment *types.Moment `json:"moment"`
}

func (c *Client) Finalize(ctx context.Context, id types.SessionID) (*types.Moment, error) {
	var resp momentEnvelope
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(string(id))+"/finalize", nil, &resp)
	return resp.Moment, err
}

func (c *Client) Close(ctx context.Context, id types.SessionID) (*types.Moment, error) {
	var resp momentEnvelope
	err := c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(string(id)), nil, &resp)
	return resp.Moment, err
}

// Event is one server-sent event. Snapshot events carry several moments,
// live ones exactly one.
type Event struct {
	Name    string
	Moments []types.MomentEvent
}

// Stream follows /api/events until ctx is done or the connection drops.
// session may be empty for all sessions.
func (c *Client) Stream(ctx context.Context, session types.SessionID, fn func(Event)) error {
	path := "/api/events"
	if session != "" {
		path += "?session=" + url.QueryEscape(string(session))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: "event stream unavailable"}
	}
	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func readEvents(r io.Reader, fn func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	var name string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" && data.Len() > 0 {
				if ev, err := decodeEvent(name, data.String()); err == nil {
					fn(ev)
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

func decodeEvent(name, data string) (Event, error) {
	ev := Event{Name: name}
	if name == "snapshot" {
		err := json.Unmarshal([]byte(data), &ev.Moments)
		return ev, err
	}
	var m types.MomentEvent
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return ev, err
	}
	ev.Moments = []types.MomentEvent{m}
	return ev, nil
}
