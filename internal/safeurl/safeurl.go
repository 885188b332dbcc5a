// Package safeurl checks source URLs and strips credentials from them before
// they reach logs, errors or the status endpoint.
package safeurl

import (
	"net/url"
	"strings"
)

// Redacted replaces every hidden value.
const Redacted = "REDACTED"

// credentialKeys are query parameters that carry secrets in provider URLs
// (get.php?username=..&password=.., ?token=..).
var credentialKeys = map[string]bool{
	"username": true, "password": true, "user": true, "pass": true,
	"token": true, "api_key": true, "apikey": true, "key": true, "auth": true,
}

// IsHTTPOrHTTPS reports whether u parses with an http or https scheme.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact hides userinfo and credential query values in an http(s) URL.
// Anything else, local paths included, is returned unchanged.
func Redact(u string) string {
	if !IsHTTPOrHTTPS(u) {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	changed := false
	if parsed.User != nil {
		parsed.User = url.User(Redacted)
		changed = true
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		for k, vals := range q {
			if !credentialKeys[strings.ToLower(k)] {
				continue
			}
			for i := range vals {
				vals[i] = Redacted
			}
			changed = true
		}
		if changed {
			parsed.RawQuery = q.Encode()
		}
	}
	if !changed {
		return u
	}
	return parsed.String()
}
