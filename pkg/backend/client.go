// Package backend is the HTTP client of the remote REST backend that owns
// queries and recommendations. It implements repository.Backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/garnizeh/recboard/internal/jobs"
	"github.com/garnizeh/recboard/internal/metrics"
	"github.com/garnizeh/recboard/pkg/repository"
)

const maxBodyBytes = 8 << 20

var (
	ErrCircuitOpen = errors.New("backend circuit open")
	ErrClosed      = errors.New("backend client closed")
)

// StatusError is returned for non-2xx answers other than 404.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client wraps the backend REST API and adds retries, timeout, and circuit breaker.
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	closed int32 // atomic flag for Close()
}

var _ repository.Backend = (*Client)(nil)

// package-level logger for pkg/backend; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/backend. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// NewClient creates a new backend client. A nil httpClient gets a plain
// client whose timeout is cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{cfg: cfg, base: u, client: httpClient}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "backend",
		Timeout: cfg.CircuitReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.CircuitFailureThreshold)
		},
		// answers the backend gave on purpose do not count against it
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("backend: circuit state changed", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})

	logger.Info("backend: NewClient created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

// NewDefaultClient creates a client with a tuned transport.
func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return NewClient(cfg, defaultClient)
}

// Close releases idle connections. Close is idempotent; calls made after it
// fail with ErrClosed.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
			logger.Info("backend: client Close() called - CloseIdleConnections invoked")
		}
	}
	return nil
}

// Health reports whether the backend answers a cheap listing.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/queries", url.Values{"limit": {"1"}}, nil, false)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// retryable reports whether err is worth another attempt: transport errors,
// timeouts and 5xx/429 answers.
func retryable(err error) bool {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// do sends one logical request. Idempotent requests are retried with
// exponential backoff; all of them pass through the circuit breaker.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, idempotent bool) (raw []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStore("http", op, start, err) }()

	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrClosed
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
	}

	attempts := 1
	if idempotent {
		attempts += c.cfg.Retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := jobs.BackoffDuration(attempt-1, c.cfg.Backoff, 10*c.cfg.Backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		raw, err = c.cb.Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, method, path, query, payload)
		})
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s %s", ErrCircuitOpen, method, path)
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		logger.Debug("backend: request failed", slog.String("op", op), slog.Int("attempt", attempt+1), slog.String("err", err.Error()))
	}

	if attempts > 1 {
		return nil, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, repository.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
