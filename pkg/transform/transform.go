// Package transform decides how an upstream response reaches the client:
// redirect re-addressing, HTML rewriting, or streamed passthrough.
package transform

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"veil/pkg/metrics"
	"veil/pkg/rewrite"
	"veil/pkg/token"
)

// strippedHeaders never reach the client. Set-Cookie, Server and
// X-Powered-By identify the origin or the client session; Referrer-Policy
// is replaced with no-referrer unconditionally. Hop-by-hop headers and
// Content-Length are managed by the serving framework.
var strippedHeaders = map[string]bool{
	"Set-Cookie":          true,
	"Server":              true,
	"X-Powered-By":        true,
	"Referrer-Policy":     true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// Result is what the handler writes back. Exactly one of Body and Stream is
// set: rewritten HTML is buffered in full, everything else streams so the
// client can start rendering before the body completes.
type Result struct {
	Status        int
	Header        http.Header
	Body          []byte
	Stream        io.ReadCloser
	ContentLength int64 // -1 when unknown
}

// Transformer routes upstream responses. Prefix is the proxy route prefix
// rewritten references are addressed under.
type Transformer struct {
	Prefix  string
	Metrics *metrics.Metrics
}

// Transform consumes resp and produces the client-facing result. target is
// the fetched URL after any redirect hops so far; it is the base for all
// reference resolution. On the streaming branch, body ownership moves to
// the Result; on all other branches the upstream body is closed here.
func (t *Transformer) Transform(resp *http.Response, target *url.URL) (*Result, error) {
	header := FilterHeaders(resp.Header)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		resp.Body.Close()
		if loc := resp.Header.Get("Location"); loc != "" {
			if dest := rewrite.Resolve(loc, target); dest != nil {
				header.Set("Location", t.Prefix+token.Encode(dest.String()))
			}
		}
		return &Result{Status: resp.StatusCode, Header: header, ContentLength: 0}, nil
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading upstream body: %w", err)
		}

		rewritten, err := rewrite.New(target, t.Prefix).Rewrite(body)
		if err != nil {
			// fail open: an unrewritten page beats a broken one
			log.Printf("WARN: leaving %s unrewritten: %v", target, err)
			if t.Metrics != nil {
				t.Metrics.HTMLParseFailures.Inc()
			}
			return &Result{Status: resp.StatusCode, Header: header, Body: body, ContentLength: int64(len(body))}, nil
		}
		if t.Metrics != nil {
			t.Metrics.HTMLRewrites.Inc()
		}
		header.Set("Content-Type", "text/html; charset=utf-8")
		return &Result{Status: resp.StatusCode, Header: header, Body: rewritten, ContentLength: int64(len(rewritten))}, nil
	}

	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/octet-stream")
	}
	return &Result{
		Status:        resp.StatusCode,
		Header:        header,
		Stream:        resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// FilterHeaders copies upstream headers minus the deny-list and forces a
// no-referrer policy. Content-Range and Accept-Ranges survive so byte-range
// requests for media keep working.
func FilterHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		canonical := http.CanonicalHeaderKey(key)
		if strippedHeaders[canonical] {
			continue
		}
		dst[canonical] = vals
	}
	dst.Set("Referrer-Policy", "no-referrer")
	return dst
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
