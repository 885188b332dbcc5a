// Package httpclient builds the clients used for upstream guide, playlist and
// directory requests. They share one transport and identify as UserAgent.
package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 120 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4
	UserAgent              = "epgnorm/1.0"
)

var (
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Payloads are decoded by magic bytes downstream.
		DisableCompression: true,
	}
	defaultClient = &http.Client{Timeout: DefaultTimeout, Transport: userAgent{sharedTransport}}
)

// userAgent fills User-Agent when the request has none.
type userAgent struct{ next http.RoundTripper }

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") == "" {
		r = r.Clone(r.Context())
		r.Header.Set("User-Agent", UserAgent)
	}
	return u.next.RoundTrip(r)
}

// Default returns the shared client.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client on the shared transport with its own timeout.
// timeout <= 0 means DefaultTimeout.
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: defaultClient.Transport}
}
