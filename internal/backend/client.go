package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/impulse-study/impulse/internal/model"
)

// DefaultBaseURL is used when no backend URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 512

// Client talks to the quiz backend over JSON/HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used to record failure causes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL. An empty baseURL falls
// back to DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartSession asks the backend for a new session token.
func (c *Client) StartSession(ctx context.Context) (*model.SessionStart, error) {
	var out model.SessionStart
	if err := c.do(ctx, OpStartSession, http.MethodPost, "/session/start", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQuestion fetches the next question. difficulty is only a hint; the
// backend may return a question of another level.
func (c *Client) GetQuestion(ctx context.Context, difficulty model.Difficulty, sessionID string) (*model.Question, error) {
	var out model.Question
	path := "/questions/" + url.PathEscape(string(difficulty))
	if err := c.do(ctx, OpGetQuestion, http.MethodGet, path, sessionQuery(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer posts an answer and returns the explanation and fresh stats.
func (c *Client) SubmitAnswer(ctx context.Context, sub model.AnswerSubmission, sessionID string) (*model.SubmitResult, error) {
	var out model.SubmitResult
	if err := c.do(ctx, OpSubmitAnswer, http.MethodPost, "/questions/submit", sessionQuery(sessionID), sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMotivationNudge fetches an encouragement message.
func (c *Client) GetMotivationNudge(ctx context.Context, sessionID string) (*model.Motivation, error) {
	var out model.Motivation
	if err := c.do(ctx, OpGetMotivation, http.MethodGet, "/motivation/nudge", sessionQuery(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionStats fetches the backend's full view of a session.
func (c *Client) GetSessionStats(ctx context.Context, sessionID string) (*model.SessionReport, error) {
	var out model.SessionReport
	path := "/session/stats/" + url.PathEscape(sessionID)
	if err := c.do(ctx, OpGetSessionStats, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls the backend root endpoint.
func (c *Client) Health(ctx context.Context) (*model.Health, error) {
	var out model.Health
	if err := c.do(ctx, OpHealth, http.MethodGet, "/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionQuery(sessionID string) url.Values {
	return url.Values{"session_id": {sessionID}}
}

// do performs one request. Any failure is logged with its cause and
// returned as *Error; there are no retries.
func (c *Client) do(ctx context.Context, op Op, method, path string, query url.Values, in, out any) error {
	status, err := c.roundTrip(ctx, method, path, query, in, out)
	if err != nil {
		e := &Error{Op: op, Status: status, Wrapped: err}
		c.logger.Error("backend request failed",
			"op", string(op),
			"method", method,
			"path", path,
			"status", status,
			"error", err,
		)
		return e
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in, out any) (int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, errors.New("decode response: empty body")
		}
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
