package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgnorm/internal/epgerr"
	"github.com/snapetech/epgnorm/internal/httpclient"
)

func TestGet_conditional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		_, _ = w.Write([]byte("<tv/>"))
	}))
	defer srv.Close()

	f := &Fetcher{Limiter: httpclient.NewHostLimiter(2, 0)}
	res, err := f.Get(context.Background(), srv.URL, Validators{})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", string(res.Body))
	assert.Equal(t, `"v1"`, res.ETag)
	assert.NotEmpty(t, res.ContentHash)

	_, err = f.Get(context.Background(), srv.URL, Validators{ETag: res.ETag})
	assert.True(t, errors.Is(err, ErrNotModified))
}

func TestGet_statusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := (&Fetcher{}).Get(context.Background(), srv.URL, Validators{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, epgerr.ErrUpstreamFetch))
	var ue *epgerr.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.StatusCode)
}

func TestGet_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := (&Fetcher{}).Get(context.Background(), url, Validators{})
	assert.True(t, errors.Is(err, epgerr.ErrUpstreamFetch), "err=%v", err)
}

func TestGet_brotliBody(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte("<tv>br</tv>"))
	require.NoError(t, bw.Close())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	res, err := (&Fetcher{}).Get(context.Background(), srv.URL, Validators{})
	require.NoError(t, err)
	assert.Equal(t, "<tv>br</tv>", string(res.Body))
}

func TestGet_sizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()
	_, err := (&Fetcher{MaxBytes: 16}).Get(context.Background(), srv.URL, Validators{})
	assert.True(t, errors.Is(err, epgerr.ErrUpstreamFetch))
}

func TestGet_localFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte("<tv/>"), 0o644))
	res, err := (&Fetcher{}).Get(context.Background(), "file://"+path, Validators{})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", string(res.Body))

	_, err = (&Fetcher{}).Get(context.Background(), filepath.Join(t.TempDir(), "missing.xml"), Validators{})
	assert.True(t, errors.Is(err, epgerr.ErrUpstreamFetch))
}

func TestState_roundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchstate.json")
	s, err := LoadState(path)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	changed, err := s.Record("http://x/guide.xml", &Result{ETag: "e1", ContentHash: "h1"}, now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.Record("http://x/guide.xml", &Result{ETag: "e2", ContentHash: "h1"}, now)
	require.NoError(t, err)
	assert.False(t, changed, "same content hash")

	again, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, Validators{ETag: "e2"}, again.Validators("http://x/guide.xml"))
	require.NoError(t, again.Forget("http://x/guide.xml"))
	assert.Equal(t, Validators{}, again.Validators("http://x/guide.xml"))
}

func TestLoadState_corruptStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetchstate.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := LoadState(path)
	require.NoError(t, err)
	assert.Empty(t, s.Sources)
}
