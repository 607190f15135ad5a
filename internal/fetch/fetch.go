// Package fetch retrieves raw earthquake catalog payloads over HTTP,
// applying per-source rate limiting and retry-with-backoff.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/seismic-ingest/internal/observability"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
)

// FetchError describes why a source's fetch ultimately failed, either after
// exhausting its retry budget or on a non-retryable response. Attempts is
// the number of HTTP attempts actually made.
type FetchError struct {
	Source     string
	LastStatus int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s) failed, last status %d: %v",
		e.Source, e.Attempts, e.LastStatus, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is one source's outcome from a fan-out fetch.
type Result struct {
	Source string
	Body   string
	Err    error
}

// Fetcher retrieves payloads from FDSN-style event web services. One
// Fetcher instance owns a rate limiter per source, shared across retries
// and across invocations so the bucket state persists between cycles.
type Fetcher struct {
	httpClient *http.Client
	metrics    *observability.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Fetcher with a token bucket per enabled source in reg.
func New(reg *registry.Registry, metrics *observability.Metrics) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		metrics:    metrics,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, s := range reg.Enabled() {
		f.limiters[s.Name] = newLimiter(s.RateLimitRPM)
	}
	return f
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm < 1 {
		rpm = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

func (f *Fetcher) limiterFor(src registry.SourceConfig) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[src.Name]
	if !ok {
		l = newLimiter(src.RateLimitRPM)
		f.limiters[src.Name] = l
	}
	return l
}

// Fetch retrieves one source's payload for the given time window, honoring
// the source's rate limit and retry policy.
func (f *Fetcher) Fetch(ctx context.Context, src registry.SourceConfig, windowStart, windowEnd time.Time, minMagnitude float64) (string, error) {
	limiter := f.limiterFor(src)
	maxAttempts := src.MaxRetries + 1

	var lastErr error
	var lastStatus int

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return "", &FetchError{Source: src.Name, LastStatus: lastStatus, Attempts: attempt, Err: err}
		}

		body, status, err := f.doRequest(ctx, src, windowStart, windowEnd, minMagnitude)
		if err == nil {
			return body, nil
		}

		lastErr = err
		lastStatus = status

		if !retryable(status, err) {
			return "", &FetchError{Source: src.Name, LastStatus: lastStatus, Attempts: attempt + 1, Err: lastErr}
		}
		if attempt == maxAttempts-1 {
			break
		}

		f.metrics.SourceRetries.WithLabelValues(src.Name).Inc()

		backoff := time.Duration(math.Pow(src.RetryBackoffBase, float64(attempt)) * float64(time.Second))
		if !sleepWithContext(ctx, backoff) {
			return "", &FetchError{Source: src.Name, LastStatus: lastStatus, Attempts: attempt + 1, Err: ctx.Err()}
		}
	}

	return "", &FetchError{Source: src.Name, LastStatus: lastStatus, Attempts: maxAttempts, Err: lastErr}
}

// emptyBodyFor returns the empty-result body FDSN services are defined to
// mean by HTTP 204, which varies by payload dialect.
func emptyBodyFor(format string) string {
	if format == registry.FormatFDSNText {
		return ""
	}
	return `{"type":"FeatureCollection","features":[]}`
}

func (f *Fetcher) doRequest(ctx context.Context, src registry.SourceConfig, windowStart, windowEnd time.Time, minMagnitude float64) (string, int, error) {
	start := time.Now()
	defer func() {
		f.metrics.FetchDuration.WithLabelValues(src.Name).Observe(time.Since(start).Seconds())
	}()

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(src.TimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.BaseURL, nil)
	if err != nil {
		return "", 0, err
	}

	format := "geojson"
	if src.Format == registry.FormatFDSNText {
		format = "text"
	}

	q := req.URL.Query()
	q.Set("format", format)
	q.Set("starttime", windowStart.UTC().Format("2006-01-02T15:04:05"))
	q.Set("endtime", windowEnd.UTC().Format("2006-01-02T15:04:05"))
	q.Set("minmagnitude", strconv.FormatFloat(minMagnitude, 'f', -1, 64))
	q.Set("orderby", "time")
	req.URL.RawQuery = q.Encode()

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return emptyBodyFor(src.Format), http.StatusNoContent, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}

	if resp.StatusCode >= 300 {
		return "", resp.StatusCode, fmt.Errorf("%s: unexpected status %d", src.Name, resp.StatusCode)
	}

	return string(data), resp.StatusCode, nil
}

// retryable reports whether a failed attempt should be retried: transport
// errors (status == 0), 5xx, and 429. All other 4xx are terminal.
func retryable(status int, err error) bool {
	if status == 0 {
		return err != nil
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// FetchAll dispatches fetches for every source concurrently. A failed
// source does not cancel its peers: each goroutine always reports its own
// outcome into the returned slice, in the same order as sources, and the
// group never propagates an error.
func (f *Fetcher) FetchAll(ctx context.Context, sources []registry.SourceConfig, windowStart, windowEnd time.Time, minMagnitude float64) []Result {
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			body, err := f.Fetch(gctx, src, windowStart, windowEnd, minMagnitude)
			results[i] = Result{Source: src.Name, Body: body, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
