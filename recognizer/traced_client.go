package recognizer

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

const (
	maxResponseBytes = 1 << 20
	userAgent        = "earshot"
)

// NetworkMetrics describes one recognition round trip. Setup covers DNS,
// TCP and TLS and is zero on a reused connection.
type NetworkMetrics struct {
	Setup      time.Duration
	TTFB       time.Duration
	Total      time.Duration
	ConnReused bool
}

// tracedClient is an http.Client that keeps a warm connection to the
// recognition service and times each request.
type tracedClient struct {
	client *http.Client
}

func newTracedClient(timeout time.Duration) *tracedClient {
	return &tracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type tracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// do sends req tagged with requestID and reads at most maxResponseBytes of
// the body.
func (c *tracedClient) do(req *http.Request, requestID string) (*tracedResponse, error) {
	req.Header.Set("User-Agent", userAgent)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	m := &NetworkMetrics{}
	var setupStart, wrote time.Time
	trace := &httptrace.ClientTrace{
		GetConn: func(string) { setupStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			m.ConnReused = info.Reused
			if !info.Reused {
				m.Setup = time.Since(setupStart)
			}
		},
		WroteRequest: func(httptrace.WroteRequestInfo) { wrote = time.Now() },
		GotFirstResponseByte: func() {
			if !wrote.IsZero() {
				m.TTFB = time.Since(wrote)
			}
		},
	}

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(httptrace.WithClientTrace(req.Context(), trace)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response larger than %d bytes", maxResponseBytes)
	}
	m.Total = time.Since(start)

	return &tracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    m,
	}, nil
}
