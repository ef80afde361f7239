// Package aimove asks an external model for a move in single-player games.
// Suggestions are never trusted: Player replays them on the rules engine
// and substitutes a random legal move when they do not fit.
package aimove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, true
	case "":
		return Medium, true
	default:
		return "", false
	}
}

type Request struct {
	FEN         string     `json:"fen"`
	MoveHistory []string   `json:"moveHistory"`
	Difficulty  Difficulty `json:"difficulty"`
}

// Suggestion is the service reply. Move may be SAN or UCI; From/To win
// when both are present.
type Suggestion struct {
	Move      string `json:"move"`
	SAN       string `json:"san,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

type Suggester interface {
	Suggest(ctx context.Context, req Request) (Suggestion, error)
}

const DefaultPath = "/api/chess/move"

type Client struct {
	baseURL string
	path    string
	http    *fasthttp.Client
	headers map[string]string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithPath(p string) Option {
	return func(c *Client) {
		if p = strings.TrimSpace(p); p != "" {
			c.path = "/" + strings.TrimLeft(p, "/")
		}
	}
}

func WithHeader(k, v string) Option {
	return func(c *Client) {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			c.headers[k] = v
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithHTTPClient swaps the transport, e.g. for an in-memory listener.
func WithHTTPClient(h *fasthttp.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		path:           DefaultPath,
		http:           &fasthttp.Client{ReadTimeout: 20 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		headers:        map[string]string{},
		defaultTimeout: 15 * time.Second,
		retryMax:       2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Suggest(ctx context.Context, in Request) (Suggestion, error) {
	if strings.TrimSpace(in.FEN) == "" {
		return Suggestion{}, errors.New("aimove: fen is required")
	}
	if in.Difficulty == "" {
		in.Difficulty = Medium
	}
	if in.MoveHistory == nil {
		in.MoveHistory = []string{}
	}
	var out Suggestion
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.path, in, &out); err != nil {
		return Suggestion{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := max(c.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				if out != nil {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("decode response: %w", err)
					}
				}
				return nil
			}
			err = fmt.Errorf("ai move api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return err
			}
		} else {
			err = fmt.Errorf("request failed: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
