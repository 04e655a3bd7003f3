package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Verifier checks storefront app-proxy signatures. The proxy signs the sorted
// query parameters (signature itself excluded) with HMAC-SHA256 over the
// shared app secret.
type Verifier struct {
	secret string
}

// NewVerifier builds a Verifier. An empty secret disables verification;
// Verify then accepts every request.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Enabled reports whether signature checking is active.
func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify validates the signature over the request's query parameters.
func (v *Verifier) Verify(query url.Values) bool {
	if !v.Enabled() {
		return true
	}
	signature := query.Get("signature")
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(strings.Join(parts, "")))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
