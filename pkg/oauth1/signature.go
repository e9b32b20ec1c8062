package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"
)

// PercentEncode applies RFC 3986 encoding: everything except ALPHA, DIGIT
// and "-._~" is escaped, including the sub-delims !'()* that generic URL
// encoders leave alone.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// NormalizeParams sorts params by encoded key and joins them as
// key=value pairs separated by "&".
func NormalizeParams(params map[string]string) string {
	encoded := make(map[string]string, len(params))
	keys := make([]string, 0, len(params))
	for k, v := range params {
		ek := PercentEncode(k)
		encoded[ek] = PercentEncode(v)
		keys = append(keys, ek)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + encoded[k]
	}
	return strings.Join(pairs, "&")
}

// BuildBaseString returns METHOD&enc(baseURL)&enc(normalized params).
// Any query string on baseURL is dropped; callers merge query parameters
// into params beforehand.
func BuildBaseString(method, baseURL string, params map[string]string) string {
	return strings.ToUpper(method) + "&" +
		PercentEncode(stripQuery(baseURL)) + "&" +
		PercentEncode(NormalizeParams(params))
}

func stripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// SigningKey joins the encoded consumer and token secrets with "&".
// The token secret is empty during the request-token step.
func SigningKey(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Sign computes the base64 HMAC-SHA1 of baseString
func Sign(baseString, consumerSecret, tokenSecret string) string {
	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BuildAuthHeader formats the oauth_* entries of params as an
// Authorization header value. Other keys are ignored.
func BuildAuthHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "oauth_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = PercentEncode(k) + `="` + PercentEncode(params[k]) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// ParseFormResponse decodes an application/x-www-form-urlencoded body.
// Pairs with an empty key or value are skipped.
func ParseFormResponse(body string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(strings.TrimSpace(body), "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		dk, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		dv, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out[dk] = dv
	}
	return out
}
