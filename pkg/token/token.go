// Package token encodes absolute target URLs into compact, reversible
// tokens that are safe inside a URL path segment or query parameter.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"
)

var (
	// ErrMalformedToken means the token did not decode back to a URL.
	ErrMalformedToken = errors.New("malformed target token")

	// ErrUnsupportedScheme means the decoded target is not plain http(s).
	// Anything else (file:, ftp:, schemeless) is rejected before any fetch
	// is attempted.
	ErrUnsupportedScheme = errors.New("unsupported target scheme")
)

// Encode serializes the UTF-8 bytes of an absolute URL with URL-safe
// base64, no padding. The result contains no `+`, `/`, or `=`.
func Encode(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

// Decode is the inverse of Encode: Decode(Encode(u)).String() == u for
// every valid absolute http(s) URL u. It fails with ErrMalformedToken when
// the token is not valid base64/UTF-8 or does not parse as a URL, and with
// ErrUnsupportedScheme when the target is not http or https.
func Decode(tok string) (*url.URL, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrMalformedToken)
	}
	u, err := url.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !ValidScheme(u) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return u, nil
}

// ValidScheme reports whether u is an absolute http or https URL with a
// host. Relative URLs have no place here: every token addresses a concrete
// origin.
func ValidScheme(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
