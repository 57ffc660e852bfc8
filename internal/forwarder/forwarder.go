// Package forwarder implements XDR's upstream forwarder: it rewrites the
// Host header and reissues the inbound request against the caller-named
// upstream. The upstream response is read fully into memory (up to
// maxResponseBody) and returned as a whole; it is not streamed.
package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBody caps how much of the upstream response body XDR reads
// into memory; bytes beyond it are dropped without an error.
const maxResponseBody = 10 * 1024 * 1024

// Headers XDR strips before forwarding: its own control headers, plus the
// incoming Host (replaced with the resolved upstream host).
var strippedRequestHeaders = []string{
	"X-Agent-Id",
	"X-Upstream-Host",
	"X-Simulate-Payment",
	"Host",
}

// ErrUpstreamUnavailable is returned when the outbound request times out
// or the connection otherwise fails. The pipeline maps this to a 504.
var ErrUpstreamUnavailable = errors.New("forwarder: upstream unavailable")

// Request describes one outbound call to issue against the upstream.
type Request struct {
	Method       string
	UpstreamHost string // may include a port; X-Upstream-Host verbatim
	Path         string // request path plus query string
	Header       http.Header
	Body         []byte
}

// Response carries back everything the pipeline needs to reconstruct the
// client-facing HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	LatencyMs  int64
}

// Forwarder issues outbound requests with a bounded timeout and no retry:
// retry policy is the caller's (agent's) responsibility (spec.md §4.4).
type Forwarder struct {
	client    *http.Client
	allowHTTP bool
}

// New creates a Forwarder with the given per-request timeout. allowHTTP
// enables plain-http upstreams for local development; the default scheme
// is always https.
func New(timeout time.Duration, allowHTTP bool) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		allowHTTP: allowHTTP,
	}
}

// Ready reports whether the forwarder has a configured HTTP client to
// issue outbound calls with. It never dials an upstream itself: XDR's
// upstream host is supplied per-request, so there is no fixed address to
// probe at startup.
func (f *Forwarder) Ready() bool {
	return f.client != nil
}

// Forward issues req against its upstream and returns the response, or
// ErrUpstreamUnavailable on timeout/connect failure.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Response, error) {
	target, err := f.resolveURL(req.UpstreamHost, req.Path)
	if err != nil {
		return nil, fmt.Errorf("forwarder: %w", err)
	}

	outbound, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("forwarder: building request: %w", err)
	}
	outbound.Header = cloneHeader(req.Header)
	for _, h := range strippedRequestHeaders {
		outbound.Header.Del(h)
	}
	outbound.Host = target.Host

	start := time.Now()
	resp, err := f.client.Do(outbound)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, ErrUpstreamUnavailable
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		LatencyMs:  latency,
	}, nil
}

// resolveURL builds the outbound URL from the caller-named upstream host
// and path. Supplementary to spec.md §4.4: if path itself is an absolute
// URL (the caller proxied an absolute-URI request line), it is used as-is
// instead of being joined to upstreamHost, matching the source runtime's
// absolute-URL forwarding mode.
func (f *Forwarder) resolveURL(upstreamHost, path string) (*url.URL, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return u, nil
	}

	scheme := "https"
	if f.allowHTTP {
		scheme = "http"
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	raw := scheme + "://" + upstreamHost + path
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", upstreamHost, err)
	}
	return u, nil
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		out[k] = vv
	}
	return out
}
