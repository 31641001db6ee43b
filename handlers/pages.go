package handlers

import (
	"net/url"
	"strings"

	"veil/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const landingPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>veil</title>
<style>
body{font-family:sans-serif;max-width:40em;margin:4em auto;padding:0 1em}
input[type=url]{width:75%;padding:.5em}
button{padding:.5em 1em}
</style>
</head>
<body>
<h1>veil</h1>
<p>Browse a site through the proxy. Links, images, styles and redirects are
rewritten so navigation stays in-proxy; identifying headers never reach the
target.</p>
<form action="/nav" method="get">
<input type="url" name="url" placeholder="https://example.com" required autofocus>
<button type="submit">Go</button>
</form>
</body>
</html>
`

// Landing serves the URL entry form.
func Landing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(landingPage)
	}
}

// Navigate turns a plain URL typed into the form into its token-addressed
// proxy location. A missing scheme defaults to https.
func Navigate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Query("url"))
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).SendString("Missing target")
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || !token.ValidScheme(u) {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid target")
		}
		return c.Redirect(ProxyPrefix+token.Encode(u.String()), fiber.StatusFound)
	}
}

// Healthz is a liveness probe.
func Healthz() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
