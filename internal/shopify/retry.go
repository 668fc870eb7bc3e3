package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/version"
)

// FetchWithRetry performs a GET, retrying HTTP 429 and network failures.
//
// A 429 sleeps for the Retry-After header when present, otherwise for
// baseDelay * 2^attempt. Network errors use the same exponential backoff.
// Every other status is returned untouched; the caller decides what a
// non-2xx response means. At most maxAttempts requests are made.
func (c *Client) FetchWithRetry(ctx context.Context, url string, headers map[string]string, maxAttempts int, baseDelay time.Duration) (*http.Response, error) {
	return c.doWithRetry(ctx, http.MethodGet, url, nil, headers, maxAttempts, baseDelay)
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, headers map[string]string, maxAttempts int, baseDelay time.Duration) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, scanerrors.NewFetchError(url, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", version.UserAgent())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == maxAttempts-1 {
				return nil, scanerrors.NewFetchError(url, err).WithAttempts(attempt + 1)
			}
			delay := backoff(baseDelay, attempt)
			c.logger.Debug("request failed, backing off",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		if !ok {
			delay = backoff(baseDelay, attempt)
		}
		drainAndClose(resp)

		if attempt == maxAttempts-1 {
			break
		}
		c.logger.Debug("rate limited, waiting",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, scanerrors.NewFetchError(url, fmt.Errorf("%w after %d attempts", scanerrors.ErrMaxRetries, maxAttempts)).
		WithStatus(http.StatusTooManyRequests).
		WithAttempts(maxAttempts)
}

// backoff returns base * 2^attempt, capped at MaxRetryAfter
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > MaxRetryAfter || d <= 0 {
		return MaxRetryAfter
	}
	return d
}

// parseRetryAfter reads either delta-seconds (fractional allowed) or an HTTP date
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		if secs > MaxRetryAfter.Seconds() {
			return MaxRetryAfter, true
		}
		d = time.Duration(secs * float64(time.Second))
	} else if when, err := http.ParseTime(value); err == nil {
		d = when.Sub(now)
		if d < 0 {
			d = 0
		}
	} else {
		return 0, false
	}

	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d, true
}

// drainAndClose lets the transport reuse the connection
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}

// readSnippet returns the start of a failed response body for error messages
func readSnippet(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return strings.TrimSpace(string(b))
}
