// Package fetch implements the resilient HTTP fetcher. It is the only
// component that talks to the network.
package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrorKind classifies terminal fetch failures.
type ErrorKind int

const (
	// KindRateLimited means the server kept answering 429 past the dedicated budget.
	KindRateLimited ErrorKind = iota
	// KindNetwork means transport-level failures exhausted the retry bound.
	KindNetwork
	// KindHTTP means the server answered with a terminal non-200 status.
	KindHTTP
)

// Error is the typed failure surfaced by Fetch.
type Error struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("fetch %s: rate limit retries exhausted", e.URL)
	case KindNetwork:
		return fmt.Sprintf("fetch %s: network retries exhausted: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	}
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Config controls retry and backoff behavior.
type Config struct {
	Timeout             time.Duration
	MaxRetries          int
	RateLimitMaxRetries int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
	RateLimitWait       time.Duration
	RequestsPerSecond   float64
	ProxyURL            string
	UserAgent           string
}

// Client fetches URLs with bounded retries and exponential backoff.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client. An invalid proxy URL fails fast since a misconfigured
// proxy would otherwise poison a multi-day run.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 10 * time.Second
	}
	if cfg.RateLimitMaxRetries <= 0 {
		cfg.RateLimitMaxRetries = 2 * (cfg.MaxRetries + 1)
	}

	transport, err := newTransport(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Fetch GETs the URL, retrying transient failures. 429 responses are retried
// on their own, larger budget with a longer wait: the API throttling us is
// expected behavior, not a fault. 5xx responses are retried up to the regular
// bound; any other non-200 is terminal immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		netAttempts  int
		rateAttempts int
		lastErr      error
	)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		body, status, err := c.do(ctx, rawURL)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			netAttempts++
			if netAttempts > c.cfg.MaxRetries {
				return nil, &Error{Kind: KindNetwork, URL: rawURL, Err: lastErr}
			}
			wait := c.backoff(netAttempts - 1)
			c.logger.Warn("fetch failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", netAttempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}

		case status == http.StatusOK:
			return body, nil

		case status == http.StatusTooManyRequests:
			rateAttempts++
			if rateAttempts > c.cfg.RateLimitMaxRetries {
				return nil, &Error{Kind: KindRateLimited, Status: status, URL: rawURL}
			}
			c.logger.Warn("rate limited, backing off",
				zap.String("url", rawURL),
				zap.Int("attempt", rateAttempts),
				zap.Duration("wait", c.cfg.RateLimitWait),
			)
			if err := sleep(ctx, c.cfg.RateLimitWait); err != nil {
				return nil, err
			}

		case status >= 500:
			netAttempts++
			if netAttempts > c.cfg.MaxRetries {
				return nil, &Error{Kind: KindHTTP, Status: status, URL: rawURL}
			}
			wait := c.backoff(netAttempts - 1)
			c.logger.Warn("server error, retrying",
				zap.String("url", rawURL),
				zap.Int("status", status),
				zap.Int("attempt", netAttempts),
				zap.Duration("wait", wait),
			)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			// 404 and friends are answers, not faults.
			return nil, &Error{Kind: KindHTTP, Status: status, URL: rawURL}
		}
	}
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// backoff returns the jittered exponential wait before retry n (0-based).
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.BackoffInitial) * math.Pow(2, float64(attempt))
	if delay > float64(c.cfg.BackoffMax) {
		delay = float64(c.cfg.BackoffMax)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return transport, nil
}
