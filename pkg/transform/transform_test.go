package transform

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"testing"

	"veil/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(status int, header http.Header, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestTransformRedirect(t *testing.T) {
	tr := &Transformer{Prefix: "/p/"}
	resp := upstream(302, http.Header{"Location": {"/login"}}, "")

	res, err := tr.Transform(resp, mustParse(t, "https://example.com/app"))
	require.NoError(t, err)

	assert.Equal(t, 302, res.Status)
	assert.Equal(t, "/p/"+token.Encode("https://example.com/login"), res.Header.Get("Location"))
	assert.Empty(t, res.Body)
	assert.Nil(t, res.Stream)
}

func TestTransformRedirectAbsoluteLocation(t *testing.T) {
	tr := &Transformer{Prefix: "/p/"}
	resp := upstream(301, http.Header{"Location": {"https://other.test/home"}}, "")

	res, err := tr.Transform(resp, mustParse(t, "https://example.com/"))
	require.NoError(t, err)

	assert.Equal(t, 301, res.Status)
	assert.Equal(t, "/p/"+token.Encode("https://other.test/home"), res.Header.Get("Location"))
}

func TestTransformRewritesHTML(t *testing.T) {
	tr := &Transformer{Prefix: "/p/"}
	page := `<html><head></head><body><a href="/next">next</a></body></html>`
	resp := upstream(200, http.Header{"Content-Type": {"text/html; charset=iso-8859-1"}}, page)

	res, err := tr.Transform(resp, mustParse(t, "https://example.com/"))
	require.NoError(t, err)

	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Contains(t, string(res.Body), "/p/"+token.Encode("https://example.com/next"))
	assert.Nil(t, res.Stream)
}

func TestTransformPassesThroughNonHTML(t *testing.T) {
	tr := &Transformer{Prefix: "/p/"}
	payload := `{"ok":true}`
	resp := upstream(200, http.Header{"Content-Type": {"application/json"}}, payload)

	res, err := tr.Transform(resp, mustParse(t, "https://example.com/api"))
	require.NoError(t, err)

	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	require.NotNil(t, res.Stream)
	got, err := io.ReadAll(res.Stream)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestTransformDefaultsContentType(t *testing.T) {
	tr := &Transformer{Prefix: "/p/"}
	resp := upstream(200, http.Header{}, "binary")

	res, err := tr.Transform(resp, mustParse(t, "https://example.com/blob"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", res.Header.Get("Content-Type"))
}

func TestFilterHeaders(t *testing.T) {
	src := http.Header{
		"Set-Cookie":      {"session=abc"},
		"Server":          {"nginx"},
		"X-Powered-By":    {"PHP/8"},
		"Referrer-Policy": {"unsafe-url"},
		"Content-Type":    {"image/png"},
		"Content-Range":   {"bytes 0-99/200"},
		"Accept-Ranges":   {"bytes"},
		"Cache-Control":   {"max-age=60"},
	}

	dst := FilterHeaders(src)

	assert.Empty(t, dst.Get("Set-Cookie"))
	assert.Empty(t, dst.Get("Server"))
	assert.Empty(t, dst.Get("X-Powered-By"))
	assert.Equal(t, "no-referrer", dst.Get("Referrer-Policy"))
	assert.Equal(t, "image/png", dst.Get("Content-Type"))
	assert.Equal(t, "bytes 0-99/200", dst.Get("Content-Range"))
	assert.Equal(t, "bytes", dst.Get("Accept-Ranges"))
	assert.Equal(t, "max-age=60", dst.Get("Cache-Control"))
}
