package encapsia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Verbs the server treats as implicitly idempotent. PUT and DELETE should be
// idempotent by HTTP semantics, but the server's unavoidable audit trail
// means only DELETE is safe to repeat; PUT, POST, and PATCH are retried only
// when the caller forces it per request.
var idempotentVerbs = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodDelete:  true,
}

// retriableStatus reports whether a status code warrants another attempt.
// 503 means the service is briefly unavailable and is always worth a retry;
// 504 means the request may have been executed, so only idempotent requests
// are repeated.
func retriableStatus(code int, idempotent bool) bool {
	switch code {
	case http.StatusServiceUnavailable:
		return true
	case http.StatusGatewayTimeout:
		return idempotent
	}
	return false
}

// retriableError classifies transport errors. Failures to establish or keep
// a connection are always retried; timeouts after the request may have been
// sent are retried only for idempotent requests.
func retriableError(err error, idempotent bool) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return true
		}
		if opErr.Timeout() {
			return idempotent
		}
		// Resets, broken pipes and friends; the connection is gone.
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return idempotent
	}

	return false
}

func (c *Client) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.MinRetryDelay
	bo.MaxInterval = c.cfg.MaxRetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	return bo
}

// doResilient executes the request, retrying recoverable failures within the
// configured budget. Streaming bodies are rewound between attempts when they
// support io.Seeker; bodies that cannot be replayed disable retries.
func (c *Client) doResilient(ctx context.Context, method, endpoint string, options *requestOptions) (*http.Response, error) {
	idempotent := idempotentVerbs[method]
	if options.idempotent != nil {
		idempotent = *options.idempotent
	}

	var jsonBytes []byte
	if options.hasJSONBody {
		var err error
		jsonBytes, err = json.Marshal(options.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	seeker, rewindable := options.body.(io.ReadSeeker)
	canReplayBody := options.body == nil || rewindable

	bo := c.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if options.onRetry != nil {
				options.onRetry(attempt, lastErr)
			}
			if rewindable {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return nil, fmt.Errorf("failed to rewind request body for retry: %w", err)
				}
			}
			delay := bo.NextBackOff()
			c.logger.Debug("retrying request",
				"method", method,
				"url", endpoint,
				"attempt", attempt,
				"delay", delay,
				"cause", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var reqBody io.Reader
		switch {
		case options.hasJSONBody:
			reqBody = bytes.NewReader(jsonBytes)
		case options.body != nil:
			reqBody = options.body
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")
		switch {
		case options.hasJSONBody:
			req.Header.Set("Content-Type", "application/json")
		case options.contentType != "":
			req.Header.Set("Content-Type", options.contentType)
		}
		for k, v := range options.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if canReplayBody && attempt < c.cfg.MaxRetries && retriableError(err, idempotent) {
				lastErr = err
				continue
			}
			// Propagate the true cause so callers can classify it.
			return nil, err
		}

		if canReplayBody && attempt < c.cfg.MaxRetries && retriableStatus(resp.StatusCode, idempotent) {
			lastErr = readAPIError(resp)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}
