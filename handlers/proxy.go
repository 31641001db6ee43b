// Package handlers wires the proxy pipeline into Fiber routes.
package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"

	"veil/pkg/config"
	"veil/pkg/fetch"
	"veil/pkg/metrics"
	"veil/pkg/token"
	"veil/pkg/transform"

	"github.com/gofiber/fiber/v2"
)

// ProxyPrefix is the route prefix proxied references are written under.
// The rewriter emits every link as ProxyPrefix + token.
const ProxyPrefix = "/p/"

var (
	errMissingTarget    = errors.New("missing target")
	errDomainNotAllowed = errors.New("domain not allowed")
)

// Deps carries the request-independent collaborators shared by all routes.
type Deps struct {
	Config  *config.Config
	Fetcher *fetch.Client
	Metrics *metrics.Metrics
}

// ProxySite is the main proxy entry point. It serves /p/:token and
// /proxy?u=<token>: decode the target, fetch it with filtered headers, and
// transform the response so every reference keeps routing through the
// proxy.
func ProxySite(d Deps) fiber.Handler {
	transformer := &transform.Transformer{Prefix: ProxyPrefix, Metrics: d.Metrics}

	return func(c *fiber.Ctx) error {
		tok := c.Params("token")
		if tok == "" {
			tok = c.Query("u")
		}

		target, err := decodeTarget(d.Config, tok)
		if err != nil {
			return targetError(c, err)
		}
		if d.Config.LogURLs {
			log.Printf("INFO: %s %s", c.Method(), target)
		}

		resp, err := fetchUpstream(c, d, target)
		if err != nil {
			log.Printf("ERROR: fetching %s: %v", target, err)
			return c.Status(fiber.StatusInternalServerError).SendString("Proxy error: " + err.Error())
		}

		res, err := transformer.Transform(resp, target)
		if err != nil {
			log.Printf("ERROR: transforming response from %s: %v", target, err)
			return c.Status(fiber.StatusInternalServerError).SendString("Proxy error: " + err.Error())
		}

		writeHeaders(c, res.Header)
		c.Status(res.Status)
		if res.Stream != nil {
			return sendStream(c, res.Stream, res.ContentLength)
		}
		return c.Send(res.Body)
	}
}

// RawSite serves /raw/:token: the same fetch and header filtering as the
// proxy route, but the body streams through untouched even for HTML. Useful
// for checking what a page really serves.
func RawSite(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		target, err := decodeTarget(d.Config, c.Params("token"))
		if err != nil {
			return targetError(c, err)
		}

		resp, err := fetchUpstream(c, d, target)
		if err != nil {
			log.Printf("ERROR: fetching %s: %v", target, err)
			return c.Status(fiber.StatusInternalServerError).SendString("Proxy error: " + err.Error())
		}

		header := transform.FilterHeaders(resp.Header)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/octet-stream")
		}
		writeHeaders(c, header)
		c.Status(resp.StatusCode)
		return sendStream(c, resp.Body, resp.ContentLength)
	}
}

// decodeTarget turns an inbound token into a validated target URL, applying
// the configured domain allowlist.
func decodeTarget(cfg *config.Config, tok string) (*url.URL, error) {
	if tok == "" {
		return nil, errMissingTarget
	}
	target, err := token.Decode(tok)
	if err != nil {
		return nil, err
	}
	if !cfg.AllowsHost(target.Hostname()) {
		return nil, errDomainNotAllowed
	}
	return target, nil
}

// targetError maps target decoding failures onto client responses.
func targetError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errMissingTarget):
		return c.Status(fiber.StatusBadRequest).SendString("Missing target")
	case errors.Is(err, errDomainNotAllowed):
		return c.Status(fiber.StatusForbidden).SendString("Domain not allowed")
	default:
		log.Printf("ERROR: invalid target token: %v", err)
		return c.Status(fiber.StatusBadRequest).SendString("Invalid target")
	}
}

// fetchUpstream forwards the inbound request to the target with the
// privacy-filtered header set. Cookies go upstream only with the explicit
// forwardCookies=1 opt-in.
func fetchUpstream(c *fiber.Ctx, d Deps, target *url.URL) (*http.Response, error) {
	inbound := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		inbound.Add(string(key), string(value))
	})

	opts := fetch.Options{ForwardCookies: c.Query("forwardCookies") == "1"}

	var body io.Reader
	if reqBody := c.Body(); len(reqBody) > 0 {
		body = bytes.NewReader(reqBody)
	}

	return d.Fetcher.Do(c.UserContext(), c.Method(), target, inbound, body, opts)
}

func sendStream(c *fiber.Ctx, body io.Reader, size int64) error {
	if size >= 0 {
		return c.SendStream(body, int(size))
	}
	return c.SendStream(body)
}

func writeHeaders(c *fiber.Ctx, header http.Header) {
	for key, vals := range header {
		for _, v := range vals {
			c.Response().Header.Add(key, v)
		}
	}
}
