// Package fetch retrieves guide, playlist and directory documents from HTTP(S)
// URLs or local files, with conditional GET support.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgnorm/internal/compress"
	"github.com/snapetech/epgnorm/internal/epgerr"
	"github.com/snapetech/epgnorm/internal/httpclient"
	"github.com/snapetech/epgnorm/internal/safeurl"
)

// ErrNotModified is returned by Get when the server responds 304.
var ErrNotModified = errors.New("fetch: 304 not modified")

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 100 << 20

// Result carries the body and the cache validators of a successful fetch.
type Result struct {
	Body         []byte
	ETag         string
	LastModified string
	ContentType  string
	// ContentHash lets callers detect changes when ETag/Last-Modified are absent.
	ContentHash string
}

// Validators are the conditional-GET headers from a previous fetch.
type Validators struct {
	ETag         string
	LastModified string
}

// Fetcher downloads sources. The zero value uses httpclient.Default and no
// per-host pacing.
type Fetcher struct {
	Client   *http.Client
	Limiter  *httpclient.HostLimiter
	MaxBytes int64
	Log      logrus.FieldLogger
}

func (f *Fetcher) log() logrus.FieldLogger {
	if f.Log != nil {
		return f.Log
	}
	return logrus.StandardLogger().WithField("component", "fetch")
}

// IsRemote reports whether src is an http(s) URL.
func IsRemote(src string) bool {
	return safeurl.IsHTTPOrHTTPS(strings.TrimSpace(src))
}

// Get fetches src. Remote sources honour v and return ErrNotModified on 304;
// failures are *epgerr.UpstreamError. Local paths (optionally file://) are
// read directly. A brotli Content-Encoding is decoded here; other encodings
// are left for magic-byte detection downstream.
func (f *Fetcher) Get(ctx context.Context, src string, v Validators) (*Result, error) {
	if !IsRemote(src) {
		return f.readFile(src)
	}
	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	if f.Limiter != nil {
		release, err := f.Limiter.Acquire(ctx, src)
		if err != nil {
			return nil, &epgerr.UpstreamError{URL: src, Err: err}
		}
		defer release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, &epgerr.UpstreamError{URL: src, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &epgerr.UpstreamError{URL: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &epgerr.UpstreamError{URL: src, StatusCode: resp.StatusCode}
	}

	body, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, &epgerr.UpstreamError{URL: src, StatusCode: resp.StatusCode, Err: err}
	}
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "br") {
		body, err = compress.DecodeAs(compress.Brotli, body, f.maxBytes())
		if err != nil {
			return nil, err
		}
	}
	f.log().WithFields(logrus.Fields{"url": safeurl.Redact(src), "bytes": len(body)}).Debug("fetch: downloaded")
	return &Result{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
		ContentHash:  ContentHash(body),
	}, nil
}

func (f *Fetcher) readFile(src string) (*Result, error) {
	path := filepath.Clean(strings.TrimPrefix(src, "file://"))
	fh, err := os.Open(path)
	if err != nil {
		return nil, &epgerr.UpstreamError{URL: src, Err: err}
	}
	defer fh.Close()
	body, err := f.readLimited(fh)
	if err != nil {
		return nil, &epgerr.UpstreamError{URL: src, Err: err}
	}
	return &Result{Body: body, ContentHash: ContentHash(body)}, nil
}

func (f *Fetcher) maxBytes() int64 {
	if f.MaxBytes > 0 {
		return f.MaxBytes
	}
	return DefaultMaxBytes
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.maxBytes()
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}
