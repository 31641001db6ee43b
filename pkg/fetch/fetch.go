// Package fetch performs the outbound request to the target origin with a
// privacy-filtered header set.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"veil/pkg/metrics"
)

// forwardedHeaders is the allow-list of inbound headers forwarded upstream.
// Referer and Origin are deliberately absent: the target must never learn
// where the request really came from. Range and the conditionals stay so
// media seeking and revalidation keep working. Accept-Encoding is also
// absent, which lets the transport negotiate gzip and decompress
// transparently before the body reaches the rewriter.
var forwardedHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"Range",
	"If-Range",
	"If-None-Match",
	"Cache-Control",
	"X-Requested-With",
}

// Options control a single upstream fetch.
type Options struct {
	// ForwardCookies forwards the client's Cookie header upstream. Off by
	// default; opted in per request, all-or-nothing.
	ForwardCookies bool
}

// Client fetches target resources. Redirects are never followed
// automatically: each hop must surface to the response transformer so its
// Location gets proxy-addressed instead of leaking the real origin. This is
// a contract, not an optimization.
type Client struct {
	httpClient *http.Client
	userAgent  string
	metrics    *metrics.Metrics
}

// NewTransport builds the shared upstream transport. It is injected into
// New rather than global, and is safe for concurrent use by independent
// requests.
func NewTransport(maxIdleConns int) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// New builds a Client around the given transport. The metrics parameter may
// be nil to disable upstream metrics recording.
func New(transport http.RoundTripper, timeout time.Duration, userAgent string, m *metrics.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: userAgent,
		metrics:   m,
	}
}

// Do fetches target with a filtered copy of the inbound headers. The
// context cancels the upstream request when the client goes away. The
// caller owns the response body.
func (c *Client) Do(ctx context.Context, method string, target *url.URL, inbound http.Header, body io.Reader, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}

	for _, key := range forwardedHeaders {
		if vals := inbound.Values(key); len(vals) > 0 {
			req.Header[http.CanonicalHeaderKey(key)] = vals
		}
	}
	if opts.ForwardCookies {
		if cookie := inbound.Get("Cookie"); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("fetching site: %w", err)
	}
	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}
	return resp, nil
}
