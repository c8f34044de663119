package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxResponseBody = 64 << 10

// Result holds the outcome of a single HTTP attempt.
type Result struct {
	StatusCode int
	Response   string
	Latency    time.Duration
	Err        error
}

// Kind classifies an attempt for logs and metrics.
func (r Result) Kind() string {
	switch {
	case r.Err == nil && r.StatusCode == http.StatusOK:
		return "ok"
	case r.Err == nil:
		return "status"
	case isTimeout(r.Err):
		return "timeout"
	default:
		return "error"
	}
}

// Sender posts payloads for one delivery. It owns a private transport so no connection
// state is shared with other deliveries, and keep-alives are off so retries dial afresh.
type Sender struct {
	client    *http.Client
	userAgent string
}

func NewSender(timeout time.Duration, userAgent string) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		userAgent: userAgent,
	}
}

// Send performs one POST of body to url. The response body is only read on 200.
func (s *Sender) Send(ctx context.Context, url string, body []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // destination is a user-registered webhook URL
	latency := time.Since(start)
	if err != nil {
		return Result{Err: err, Latency: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return Result{StatusCode: resp.StatusCode, Latency: latency}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		// Accepted; only the reply text is lost.
		return Result{StatusCode: resp.StatusCode, Latency: time.Since(start)}
	}
	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		Latency:    time.Since(start),
	}
}

// Close releases the sender's idle connections.
func (s *Sender) Close() {
	s.client.CloseIdleConnections()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
