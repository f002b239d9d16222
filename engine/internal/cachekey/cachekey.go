// Package cachekey computes the deterministic cache-key fingerprint
// described in spec §6.7: a sha256 digest over the canonicalized URL,
// extraction mode tag, output format tag, and extractor version.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/foofork/riptide/engine/models"
)

// Fingerprint computes the bit-exact cache key for one (url, mode,
// format, extractor_version) tuple.
func Fingerprint(rawURL string, mode models.ExtractionMode, format, extractorVersion string) (models.CacheKey, error) {
	canon, err := Canonicalize(rawURL)
	if err != nil {
		return models.CacheKey{}, err
	}
	h := sha256.New()
	h.Write([]byte(canon))
	h.Write([]byte("\n"))
	h.Write([]byte(mode.Tag()))
	h.Write([]byte("\n"))
	h.Write([]byte(format))
	h.Write([]byte("\n"))
	h.Write([]byte(extractorVersion))
	return models.CacheKey{Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Canonicalize strips the fragment, lowercases the host, normalizes
// percent-encoding via net/url's own parse/re-encode round-trip, and
// sorts query parameters by name while preserving values and repetition.
//
// A second, stricter URL parser (grounded via the pack's whatwg-url
// usage) was deliberately not used here: §6.7 pins an exact rule, and
// net/url already implements every clause of it without risking a
// mismatch against a parser with different normalization opinions — see
// DESIGN.md for the full justification.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for i, k := range keys {
			vals := q[k]
			for j, v := range vals {
				if i > 0 || j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	// EscapedPath normalizes percent-encoding (unnecessary escapes, hex
	// digit case) without altering path semantics.
	return u.Scheme + "://" + u.Host + u.EscapedPath() + queryPrefix(u.RawQuery), nil
}

func queryPrefix(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}
