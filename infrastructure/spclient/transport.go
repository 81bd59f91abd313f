package spclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"spextract/logging"
)

// RetryConfig bounds the transport-level retry of transient failures.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt
	InitialInterval time.Duration // first backoff wait
	MaxInterval     time.Duration // cap for a single wait, Retry-After included
	RetryStatuses   []int         // statuses treated as transient
	RateLimit       float64       // requests per second, 0 disables pacing
	RateBurst       int
	// AttemptTimeout bounds one attempt, response body included. Backoff
	// waits are not counted. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig mirrors the Graph throttling guidance: ten retries with
// exponential backoff from 300ms on 429 and the usual transient 5xx codes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      10,
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		AttemptTimeout:  60 * time.Second,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// RetryTransport retries transient statuses and network errors with bounded
// exponential backoff. Once retries are exhausted the last response is handed
// back untouched so the classifier sees the terminal status.
type RetryTransport struct {
	base     http.RoundTripper
	cfg      RetryConfig
	statuses map[int]struct{}
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// NewRetryTransport wraps base (http.DefaultTransport when nil).
func NewRetryTransport(base http.RoundTripper, cfg RetryConfig) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultRetryConfig().MaxInterval
	}

	statuses := make(map[int]struct{}, len(cfg.RetryStatuses))
	for _, s := range cfg.RetryStatuses {
		statuses[s] = struct{}{}
	}

	t := &RetryTransport{
		base:     base,
		cfg:      cfg,
		statuses: statuses,
		logger:   logging.Default().WithComponent("graph_transport"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t
}

type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("transient HTTP status %d", e.status)
}

// retryAfterBackOff lets a server-provided Retry-After replace the next wait.
type retryAfterBackOff struct {
	backoff.BackOff
	override time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.override > 0 {
		d = b.override
		b.override = 0
	}
	return d
}

func (t *RetryTransport) newBackOff(ctx context.Context) (*retryAfterBackOff, backoff.BackOff) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = t.cfg.InitialInterval
	expo.MaxInterval = t.cfg.MaxInterval
	expo.MaxElapsedTime = 0

	ra := &retryAfterBackOff{BackOff: expo}
	return ra, backoff.WithContext(backoff.WithMaxRetries(ra, uint64(t.cfg.MaxRetries)), ctx)
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	ra, policy := t.newBackOff(ctx)

	var resp *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		resp = nil

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		r, err := rewind(req, attempt > 1)
		if err != nil {
			return backoff.Permanent(err)
		}

		cancel := context.CancelFunc(func() {})
		if t.cfg.AttemptTimeout > 0 {
			var attemptCtx context.Context
			attemptCtx, cancel = context.WithTimeout(ctx, t.cfg.AttemptTimeout)
			r = r.WithContext(attemptCtx)
		}

		res, err := t.base.RoundTrip(r)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			// An attempt that ran out of time is retried like a network error.
			return err
		}

		if _, transient := t.statuses[res.StatusCode]; transient && attempt <= t.cfg.MaxRetries {
			ra.override = min(parseRetryAfter(res.Header.Get("Retry-After")), t.cfg.MaxInterval)
			drainAndClose(res)
			cancel()
			return &retryableStatusError{status: res.StatusCode}
		}

		res.Body = &cancelOnClose{ReadCloser: res.Body, cancel: cancel}
		resp = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		t.logger.Graph("Retrying request",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"reason", err.Error())
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// cancelOnClose releases an attempt's timeout once the caller is done with
// the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// rewind returns the request to send for an attempt. Retries and replays get a
// fresh body from GetBody; the original request is never mutated.
func rewind(req *http.Request, again bool) (*http.Request, error) {
	if !again || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot resend %s %s: body is not replayable", req.Method, req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// parseRetryAfter understands the delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
