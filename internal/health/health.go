// Package health backs the check subcommand: upstream reachability and a
// running server's endpoints.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snapetech/epgnorm/internal/compress"
	"github.com/snapetech/epgnorm/internal/epgerr"
	"github.com/snapetech/epgnorm/internal/fetch"
	"github.com/snapetech/epgnorm/internal/httpclient"
)

// SourceReport describes one checked source.
type SourceReport struct {
	Source      string
	StatusCode  int
	ContentType string
	Format      compress.Format
}

// CheckSource confirms src answers and looks like a payload we can decode.
// Remote sources are fetched with GET and only the first bytes are read, since
// some providers reject HEAD. Local paths must exist and be readable.
func CheckSource(ctx context.Context, client *http.Client, src string) (SourceReport, error) {
	rep := SourceReport{Source: src}
	if strings.TrimSpace(src) == "" {
		return rep, fmt.Errorf("no source configured")
	}
	if !fetch.IsRemote(src) {
		f, err := os.Open(strings.TrimPrefix(src, "file://"))
		if err != nil {
			return rep, &epgerr.UpstreamError{URL: src, Err: err}
		}
		defer f.Close()
		head := make([]byte, 8)
		n, _ := io.ReadFull(f, head)
		rep.Format = compress.Detect(head[:n])
		return rep, nil
	}
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return rep, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return rep, &epgerr.UpstreamError{URL: src, Err: fmt.Errorf("unreachable: %w", err)}
	}
	defer resp.Body.Close()
	rep.StatusCode = resp.StatusCode
	rep.ContentType = resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		return rep, &epgerr.UpstreamError{URL: src, StatusCode: resp.StatusCode}
	}
	head := make([]byte, 8)
	n, _ := io.ReadFull(resp.Body, head)
	rep.Format = compress.Detect(head[:n])
	return rep, nil
}

// CheckEndpoints hits the serve endpoints at baseURL and returns the first
// error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(5 * time.Second)
	for _, path := range []string{"/healthz", "/api/status", "/api/channels"} {
		url := strings.TrimSuffix(baseURL, "/") + path
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
