// Package rewrite transforms an HTML document so that every embedded
// reference routes back through the proxy. It parses best-effort, walks the
// tree once, and fails open: markup it cannot handle is left unchanged.
package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"veil/pkg/token"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// srcElements are the element kinds whose src attribute names a resource.
var srcElements = []string{
	"script[src]", "img[src]", "iframe[src]", "frame[src]",
	"video[src]", "audio[src]", "source[src]", "embed[src]",
	"track[src]", "input[src]",
}

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*(["']?)([^"')]+)(["']?)\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+(["'])([^"']+)(["'])`)
)

// Rewriter rewrites one document against a fixed base. The base is the
// fetched target after any redirect hops and never changes during a
// rewrite; references already addressed to the proxy are recognized and
// left alone, so rewriting is idempotent.
type Rewriter struct {
	Base   *url.URL
	Prefix string // proxy route prefix tokens are written under, e.g. "/p/"
}

// New returns a Rewriter for one document fetched from base.
func New(base *url.URL, prefix string) *Rewriter {
	return &Rewriter{Base: base, Prefix: prefix}
}

// Rewrite transforms an HTML document and returns the serialized result.
// On parse or render failure the input is returned unchanged along with the
// error, so the caller can serve the original bytes rather than break the
// page.
func (rw *Rewriter) Rewrite(body []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return body, fmt.Errorf("parsing document: %w", err)
	}

	rw.rewriteAnchors(doc)
	rw.rewriteAttr(doc, "link[href]", "href")
	rw.rewriteAttr(doc, "area[href]", "href")
	for _, sel := range srcElements {
		rw.rewriteAttr(doc, sel, "src")
	}
	rw.rewriteForms(doc)
	rw.rewriteMetaRefresh(doc)
	rw.rewriteSrcsets(doc)
	rw.rewriteStyleAttrs(doc)
	rw.rewriteStyleBlocks(doc)
	rw.injectGuard(doc)

	out, err := doc.Html()
	if err != nil {
		return body, fmt.Errorf("rendering document: %w", err)
	}
	return []byte(out), nil
}

// proxyRef resolves ref against the base and returns its proxy-addressed
// form. ok is false when the reference must be left untouched: opaque
// scheme, unresolvable, or already one of our own proxy URLs.
func (rw *Rewriter) proxyRef(ref string) (string, bool) {
	if rw.alreadyProxied(ref) {
		return "", false
	}
	u := Resolve(ref, rw.Base)
	if u == nil {
		return "", false
	}
	return rw.Prefix + token.Encode(u.String()), true
}

// alreadyProxied recognizes references that carry a decodable token under
// the proxy prefix. Encoding those again would double-encode and break
// navigation on nested rewrites.
func (rw *Rewriter) alreadyProxied(ref string) bool {
	path := strings.TrimSpace(ref)
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		path = u.Path
	}
	if !strings.HasPrefix(path, rw.Prefix) {
		return false
	}
	_, err := token.Decode(strings.TrimPrefix(path, rw.Prefix))
	return err == nil
}

func (rw *Rewriter) rewriteAttr(doc *goquery.Document, selector, attr string) {
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if proxied, ok := rw.proxyRef(s.AttrOr(attr, "")); ok {
			s.SetAttr(attr, proxied)
		}
	})
}

// rewriteAnchors proxies link targets and unions rel with values that keep
// the proxied page invisible to the target when a link is followed.
func (rw *Rewriter) rewriteAnchors(doc *goquery.Document) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		proxied, ok := rw.proxyRef(s.AttrOr("href", ""))
		if !ok {
			return
		}
		s.SetAttr("href", proxied)
		s.SetAttr("rel", unionRel(s.AttrOr("rel", "")))
	})
}

func unionRel(rel string) string {
	parts := strings.Fields(rel)
	for _, want := range []string{"noreferrer", "noopener"} {
		present := false
		for _, p := range parts {
			if strings.EqualFold(p, want) {
				present = true
				break
			}
		}
		if !present {
			parts = append(parts, want)
		}
	}
	return strings.Join(parts, " ")
}

func (rw *Rewriter) rewriteForms(doc *goquery.Document) {
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action := strings.TrimSpace(s.AttrOr("action", ""))
		if action == "" {
			// An empty action submits to the current page, which for a
			// proxied document means the proxied target.
			s.SetAttr("action", rw.Prefix+token.Encode(rw.Base.String()))
			return
		}
		if proxied, ok := rw.proxyRef(action); ok {
			s.SetAttr("action", proxied)
		}
	})
}

// rewriteMetaRefresh handles <meta http-equiv="refresh" content="N;url=X">,
// preserving the delay prefix and proxying only the URL part.
func (rw *Rewriter) rewriteMetaRefresh(doc *goquery.Document) {
	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			return
		}
		content := s.AttrOr("content", "")
		idx := strings.Index(strings.ToLower(content), ";url=")
		if idx < 0 {
			return
		}
		ref := content[idx+len(";url="):]
		if proxied, ok := rw.proxyRef(ref); ok {
			s.SetAttr("content", content[:idx]+";url="+proxied)
		}
	})
}

// rewriteSrcsets splits srcset lists into (url, descriptor) pairs, proxies
// each URL, and reassembles with the descriptors and comma-space separation
// intact.
func (rw *Rewriter) rewriteSrcsets(doc *goquery.Document) {
	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("srcset", rw.rewriteSrcsetValue(s.AttrOr("srcset", "")))
	})
}

func (rw *Rewriter) rewriteSrcsetValue(srcset string) string {
	entries := strings.Split(srcset, ",")
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		if proxied, ok := rw.proxyRef(fields[0]); ok {
			fields[0] = proxied
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

func (rw *Rewriter) rewriteStyleAttrs(doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := s.AttrOr("style", "")
		if rewritten := rw.RewriteCSS(style); rewritten != style {
			s.SetAttr("style", rewritten)
		}
	})
}

// rewriteStyleBlocks mutates the raw text children of <style> elements
// directly; going through fragment re-parsing would entity-escape the CSS.
func (rw *Rewriter) rewriteStyleBlocks(doc *goquery.Document) {
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = rw.RewriteCSS(c.Data)
				}
			}
		}
	})
}

// RewriteCSS proxies url(...) and @import references in a CSS fragment.
// Quoted and unquoted forms are both handled; data: and javascript:
// payloads pass through. Escaped quotes and nested parentheses inside
// url() are not handled, a known limitation of the token scanner.
func (rw *Rewriter) RewriteCSS(css string) string {
	out := cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		quote, ref := sub[1], sub[2]
		proxied, ok := rw.proxyRef(ref)
		if !ok {
			return match
		}
		return "url(" + quote + proxied + quote + ")"
	})
	return cssImportPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := cssImportPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		quote, ref := sub[1], sub[2]
		proxied, ok := rw.proxyRef(ref)
		if !ok {
			return match
		}
		return "@import " + quote + proxied + quote
	})
}
