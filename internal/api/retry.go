package api

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryBackoff = time.Second
	defaultRetryMaxWait = 30 * time.Second
)

// RetryPolicy governs retries of idempotent gateway calls. Only the query
// proxy is retried; replies are sent exactly once.
type RetryPolicy struct {
	MaxRetries int           // attempts after the first; 0 sends once
	Backoff    time.Duration // wait before retry n is n*n*Backoff plus jitter
	MaxWait    time.Duration // cap for a single wait, Retry-After included
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	if p.MaxWait <= 0 {
		p.MaxWait = defaultRetryMaxWait
	}
	return p
}

// wait returns the pause before retry attempt n (1-based). A Retry-After
// hint from the gateway replaces the computed backoff.
func (p RetryPolicy) wait(n int, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = time.Duration(n*n) * p.Backoff
		d += time.Duration(rand.Int63n(int64(d/2 + 1)))
	}
	return min(d, p.MaxWait)
}

// transientStatus reports gateway statuses worth another attempt.
func transientStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// send issues the request built by newReq, retrying transport failures and
// transient statuses according to p. When retries run out the last
// response is returned as is, so the caller's status check reports it.
func (c *Client) send(ctx context.Context, endpoint string, p RetryPolicy, newReq func() (*http.Request, error)) (*http.Response, error) {
	var hint time.Duration
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := p.wait(attempt, hint)
			c.logger.Warn("retrying gateway call", "endpoint", endpoint, "attempt", attempt+1, "wait", wait)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", endpoint, err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt < p.MaxRetries && ctx.Err() == nil {
				c.logger.Warn("gateway call failed", "endpoint", endpoint, "err", err)
				hint = 0
				continue
			}
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}

		if transientStatus(resp.StatusCode) && attempt < p.MaxRetries {
			hint = retryAfter(resp.Header)
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			c.logger.Warn("gateway busy", "endpoint", endpoint, "status", resp.StatusCode, "retry_after", hint)
			continue
		}
		return resp, nil
	}
}
