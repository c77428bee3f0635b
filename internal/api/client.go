package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotReady is returned by Client.Result while the workflow is processing.
var ErrNotReady = errors.New("result not ready")

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client talks to a dubflow daemon over HTTP.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for baseURL, for example http://127.0.0.1:7488.
// A bare host:port is accepted.
func NewClient(baseURL, token string) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, errors.New("api address is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	return &Client{
		base:  parsed,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Submit sends SRT content and returns the new workflow id.
func (c *Client) Submit(ctx context.Context, srt, voice string) (string, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/workflows", nil, SubmitRequest{SRT: srt, Voice: voice}, &resp); err != nil {
		return "", err
	}
	return resp.WorkflowID, nil
}

// Status fetches the aggregated workflow status.
func (c *Client) Status(ctx context.Context, workflowID string) (WorkflowView, error) {
	var view WorkflowView
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(workflowID), nil, nil, &view)
	return view, err
}

// Result fetches the final result, returning ErrNotReady while processing.
func (c *Client) Result(ctx context.Context, workflowID string) (ResultView, error) {
	var view ResultView
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(workflowID)+"/result", nil, nil, &view)
	return view, err
}

// Jobs lists every job recorded for a workflow.
func (c *Client) Jobs(ctx context.Context, workflowID string) ([]JobView, error) {
	var resp QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/workflows/"+url.PathEscape(workflowID)+"/jobs", nil, nil, &resp)
	return resp.Jobs, err
}

// Retry re-enqueues the failed stage of a workflow.
func (c *Client) Retry(ctx context.Context, workflowID string) (RetryResponse, error) {
	var resp RetryResponse
	err := c.do(ctx, http.MethodPost, "/api/workflows/"+url.PathEscape(workflowID)+"/retry", nil, nil, &resp)
	return resp, err
}

// Voices lists synthesis voices.
func (c *Client) Voices(ctx context.Context) ([]VoiceView, error) {
	var resp VoicesResponse
	err := c.do(ctx, http.MethodGet, "/api/voices", nil, nil, &resp)
	return resp.Voices, err
}

// Estimate asks the daemon for a speech duration estimate.
func (c *Client) Estimate(ctx context.Context, text string) (EstimateResponse, error) {
	var resp EstimateResponse
	err := c.do(ctx, http.MethodPost, "/api/estimate", nil, EstimateRequest{Text: text}, &resp)
	return resp, err
}

// Queue lists jobs, optionally filtered by state.
func (c *Client) Queue(ctx context.Context, states ...string) ([]JobView, error) {
	query := url.Values{}
	for _, state := range states {
		query.Add("state", state)
	}
	var resp QueueListResponse
	err := c.do(ctx, http.MethodGet, "/api/queue", query, nil, &resp)
	return resp.Jobs, err
}

// QueueStats fetches per-state counts.
func (c *Client) QueueStats(ctx context.Context) (QueueStatsResponse, error) {
	var resp QueueStatsResponse
	err := c.do(ctx, http.MethodGet, "/api/queue/stats", nil, nil, &resp)
	return resp, err
}

// Purge removes finished workflows older than olderThan. A negative value uses
// the daemon's configured retention.
func (c *Client) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := url.Values{}
	if olderThan >= 0 {
		query.Set("older_than", olderThan.String())
	}
	var resp PurgeResponse
	err := c.do(ctx, http.MethodDelete, "/api/queue", query, nil, &resp)
	return resp.Removed, err
}

// LogQuery selects daemon log lines. Offset -1 asks for the last Lines
// lines; a positive Wait long-polls for lines written after Offset.
type LogQuery struct {
	Offset     int64
	Lines      int
	Wait       time.Duration
	WorkflowID string
}

// Logs tails the daemon log file.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogTailResponse, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(q.Offset, 10))
	query.Set("lines", strconv.Itoa(q.Lines))
	if q.Wait > 0 {
		query.Set("wait", q.Wait.String())
	}
	if q.WorkflowID != "" {
		query.Set("workflow", q.WorkflowID)
	}
	var resp LogTailResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", query, nil, &resp)
	return resp, err
}

// Health fetches daemon diagnostics.
func (c *Client) Health(ctx context.Context) (HealthView, error) {
	var view HealthView
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &view)
	return view, err
}

// Watch streams status snapshots to fn until the workflow reaches a
// terminal state, the server closes the stream or ctx is cancelled. It
// returns the last snapshot received.
func (c *Client) Watch(ctx context.Context, workflowID string, fn func(WorkflowView)) (WorkflowView, error) {
	target := *c.base
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = strings.TrimRight(target.Path, "/") + "/api/workflows/" + url.PathEscape(workflowID) + "/watch"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return WorkflowView{}, decodeError(resp)
		}
		return WorkflowView{}, fmt.Errorf("watch %s: %w", workflowID, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last WorkflowView
	for {
		var view WorkflowView
		if err := conn.ReadJSON(&view); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("watch %s: %w", workflowID, err)
		}
		last = view
		if fn != nil {
			fn(view)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawPath = ""
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted && method == http.MethodGet {
		return ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		se.Message = body.Error
		se.Code = body.Code
	}
	return se
}
