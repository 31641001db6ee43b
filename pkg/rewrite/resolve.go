package rewrite

import (
	"net/url"
	"strings"
)

// opaqueSchemes are reference schemes that must never be rewritten:
// proxying them breaks in-page behavior rather than anonymizing anything.
var opaqueSchemes = []string{"javascript:", "data:", "mailto:", "tel:"}

// IsRewritable reports whether ref is even a candidate for proxying.
// Empty references, in-page fragments and opaque schemes are not, checked
// by case-insensitive prefix before any parsing happens.
func IsRewritable(ref string) bool {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range opaqueSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// Resolve resolves a possibly-relative reference (protocol-relative,
// absolute-path, relative, query-only) against base. It returns nil when
// the reference is opaque or unresolvable; the caller must then leave the
// original reference untouched.
func Resolve(ref string, base *url.URL) *url.URL {
	if !IsRewritable(ref) {
		return nil
	}
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return u
}
