package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient layers retries, per-attempt timeouts and a circuit breaker on
// top of a plain http.Client. Request bodies are buffered once up front so
// every attempt replays the same bytes.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Fallback    func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do runs the request until it succeeds, attempts run out, or the breaker
// opens. Transport errors and 5xx responses count as failures; anything
// below 500 is handed back to the caller as-is. When all attempts fail the
// fallback, if set, gets the last error. A nil Breaker means retries run
// unguarded.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	attempts := cl.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	report := func(success bool) {
		if breaker != nil {
			breaker.Report(ctx, success)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if breaker != nil && !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}

		resp, err := cl.attempt(ctx, req, body)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			report(true)
			return resp, nil
		}
		report(false)
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(resp.Status)
		}
		if attempt == attempts {
			break
		}

		pause := time.NewTimer(Backoff(base, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			pause.Stop()
			return nil, ctx.Err()
		case <-pause.C:
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	clone := req.Clone(ctx)
	if body != nil {
		setReplayBody(clone, body)
	}
	return cl.Client.Do(clone)
}

// bufferBody drains the request body into memory and rewinds the original
// request so it stays usable by the fallback.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	_ = src.Close()

	setReplayBody(req, data)
	return data, nil
}

func setReplayBody(req *http.Request, data []byte) {
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}
