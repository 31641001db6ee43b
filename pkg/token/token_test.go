package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	urls := []string{
		"https://example.com/",
		"http://example.com/a/b.html?x=1&y=2",
		"https://example.com/path%20with%20spaces",
		"https://user@example.com:8443/deep/path#frag",
		"https://example.com/?q=caf%C3%A9",
		"http://192.168.0.1:9999/",
	}
	for _, raw := range urls {
		t.Run(raw, func(t *testing.T) {
			u, err := Decode(Encode(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, u.String())
		})
	}
}

func TestEncodeIsTransportSafe(t *testing.T) {
	// long URL with bytes that force +, / and padding in plain base64
	raw := "https://example.com/???///~~~" + strings.Repeat("ÿ", 7)
	tok := Encode(raw)
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	assert.NotContains(t, tok, "=")
}

func TestDecodeRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name string
		tok  string
		want error
	}{
		{"not base64", "!!!not-base64!!!", ErrMalformedToken},
		{"invalid utf8", Encode("\xff\xfe"), ErrMalformedToken},
		{"ftp scheme", Encode("ftp://x"), ErrUnsupportedScheme},
		{"file scheme", Encode("file:///etc/passwd"), ErrUnsupportedScheme},
		{"schemeless", Encode("example.com/page"), ErrUnsupportedScheme},
		{"relative path", Encode("/just/a/path"), ErrUnsupportedScheme},
		{"empty", "", ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.tok)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidScheme(t *testing.T) {
	u, err := Decode(Encode("https://example.com/x"))
	require.NoError(t, err)
	assert.True(t, ValidScheme(u))
}
