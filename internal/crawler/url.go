package crawler

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// defaultBase resolves protocol-relative links when there is no referrer.
var defaultBase = &url.URL{Scheme: "https"}

// ResolveURL resolves raw against referrer and returns the absolute URL to
// fetch together with its canonical dedup key.
func ResolveURL(raw, referrer string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty url", ErrUnsupportedURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() {
		base := defaultBase
		if referrer != "" {
			if b, perr := url.Parse(referrer); perr == nil && b.IsAbs() {
				base = b
			}
		}
		u = base.ResolveReference(u)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: missing host in %q", ErrUnsupportedURL, raw)
	}
	u.Fragment = ""
	u.RawFragment = ""
	absolute := u.String()
	return absolute, canonicalize(u), nil
}

// CanonicalizeURL returns the dedup key for an absolute URL.
//
// The key lowercases scheme and host, drops default ports and the fragment,
// removes dot segments and the trailing slash, and sorts query parameters
// by name without decoding them.
func CanonicalizeURL(raw string) (string, error) {
	_, key, err := ResolveURL(raw, "")
	return key, err
}

func canonicalize(u *url.URL) string {
	host := strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	// Clean the escaped form so %2F stays distinct from a path separator.
	p := u.EscapedPath()
	if p != "" {
		p = path.Clean(p)
	}
	p = strings.TrimRight(p, "/")

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(host)
	b.WriteString(p)
	if q := sortQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// sortQuery orders the raw &-separated pairs by their undecoded key. Pairs
// are never decoded, so parameters url.ParseQuery would reject survive.
func sortQuery(raw string) string {
	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair != "" {
			pairs = append(pairs, pair)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return queryKey(pairs[i]) < queryKey(pairs[j])
	})
	return strings.Join(pairs, "&")
}

func queryKey(pair string) string {
	key, _, _ := strings.Cut(pair, "=")
	return key
}
