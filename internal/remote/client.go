// Package remote is the HTTP client for the system of record.
//
// Reads may be retried; writes are sent exactly once. Failures come back as
// apperr remote errors carrying the remote HTTP status (0 when the remote
// could not be reached).
package remote

import (
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

	"agent_workbench/platform/apperr"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/metrics"

	"golang.org/x/sync/singleflight"
)

const maxErrorBody = 4 << 10

// Client talks to the system of record on behalf of many sessions.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	readRetries  int
	retryBackoff time.Duration
	location     *time.Location
	log          *logger.Logger
	reads        singleflight.Group
}

// New creates a client from config.
func New(cfg config.RemoteConfig, log *logger.Logger) *Client {
	return NewWithHTTPClient(cfg.GetRemoteBaseURL(), &http.Client{Timeout: cfg.GetRemoteTimeout()},
		cfg.GetRemoteReadRetries(), cfg.GetRemoteRetryBackoff(), log)
}

// NewWithHTTPClient creates a client with an explicit transport.
func NewWithHTTPClient(baseURL string, httpClient *http.Client, readRetries int, retryBackoff time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	if readRetries < 0 {
		readRetries = 0
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		readRetries:  readRetries,
		retryBackoff: retryBackoff,
		location:     time.UTC,
		log:          log,
	}
}

// SetLocation sets the zone used for remote timestamps that carry none.
func (c *Client) SetLocation(loc *time.Location) {
	if loc != nil {
		c.location = loc
	}
}

// As returns a connection that forwards token as the bearer credential.
func (c *Client) As(token string) *Conn {
	return &Conn{client: c, token: token}
}

// Conn is a Client bound to one agent's credential.
type Conn struct {
	client *Client
	token  string
}

// call describes one request to the system of record.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
}

func (c call) isRead() bool { return c.method == http.MethodGet }

func (c call) target(base string) string {
	u := base + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}
	return u
}

// do performs the call and decodes a 2xx JSON body into out (nil to discard).
func (cn *Conn) do(ctx context.Context, req call, out interface{}) error {
	if !req.isRead() {
		raw, err := cn.once(ctx, req)
		if err != nil {
			return err
		}
		return decode(req, raw, out)
	}

	// Identical concurrent reads under the same credential share one round
	// trip. The shared call outlives any single caller; each caller still
	// gives up on its own context.
	key := cn.token + " " + req.target("")
	shared := context.WithoutCancel(ctx)
	ch := cn.client.reads.DoChan(key, func() (interface{}, error) {
		return cn.withRetry(shared, req)
	})
	select {
	case <-ctx.Done():
		return cn.failure(req, 0, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return decode(req, res.Val.([]byte), out)
	}
}

// withRetry retries idempotent reads on transport failures and 5xx/429 with
// quadratic backoff.
func (cn *Conn) withRetry(ctx context.Context, req call) ([]byte, error) {
	attempts := cn.client.readRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := cn.once(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}
		delay := time.Duration(attempt*attempt) * cn.client.retryBackoff
		cn.client.log.WithContext(ctx).Warn("retrying remote read", "operation", req.op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, cn.failure(req, 0, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := StatusOf(err)
	return status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func (cn *Conn) once(ctx context.Context, req call) ([]byte, error) {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "encode remote request", err).WithOp(req.op)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.target(cn.client.baseURL), body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build remote request", err).WithOp(req.op)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if cn.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cn.token)
	}
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		httpReq.Header.Set("X-Request-Id", requestID)
	}

	start := time.Now()
	resp, err := cn.client.httpClient.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		cn.observe(ctx, req, 0, latency, err)
		return nil, cn.failure(req, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		rerr := cn.failure(req, resp.StatusCode, errors.New(remoteMessage(resp.StatusCode, snippet)))
		cn.observe(ctx, req, resp.StatusCode, latency, rerr)
		return nil, rerr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		cn.observe(ctx, req, resp.StatusCode, latency, err)
		return nil, cn.failure(req, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	cn.observe(ctx, req, resp.StatusCode, latency, nil)
	return raw, nil
}

func (cn *Conn) observe(ctx context.Context, req call, status int, latency time.Duration, err error) {
	outcome := "ok"
	switch {
	case err != nil && status == 0:
		outcome = "unreachable"
	case err != nil:
		outcome = "rejected"
	}
	metrics.RecordRemoteCall(req.op, outcome, latency)
	cn.client.log.WithContext(ctx).RemoteCall(req.method, req.path, status, latency, err)
}

func (cn *Conn) failure(req call, status int, err error) *apperr.Error {
	if req.isRead() {
		return apperr.RemoteFetch(req.op+" failed", status, err).WithOp(req.op)
	}
	return apperr.RemoteWrite(req.op+" failed", status, err).WithOp(req.op)
}

func decode(req call, raw []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return malformed(req, errors.New("empty response body"))
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return malformed(req, err)
	}
	return nil
}

func malformed(req call, err error) error {
	msg := req.op + " returned a malformed response"
	if req.isRead() {
		return apperr.RemoteFetch(msg, http.StatusOK, err).WithOp(req.op)
	}
	return apperr.RemoteWrite(msg, http.StatusOK, err).WithOp(req.op)
}

// remoteMessage extracts {"message": ...} or {"error": ...} from an error body.
func remoteMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return fmt.Sprintf("status %d: %s", status, payload.Message)
		}
		if payload.Error != "" {
			return fmt.Sprintf("status %d: %s", status, payload.Error)
		}
	}
	return fmt.Sprintf("status %d", status)
}

// StatusOf returns the remote HTTP status carried by err, 0 if none.
func StatusOf(err error) int {
	if e, ok := apperr.As(err); ok {
		return e.Status
	}
	return 0
}

// IsNotFound reports whether the remote answered 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsAbandoned reports whether the caller gave up before the remote answered.
func IsAbandoned(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
