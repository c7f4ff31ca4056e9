package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/internal/httpclient"
)

// dumpServer serves body at every path and counts requests.
type dumpServer struct {
	*httptest.Server
	status   atomic.Int32
	body     atomic.Value
	requests atomic.Int32
}

func newDumpServer(t *testing.T, body string) *dumpServer {
	t.Helper()
	s := &dumpServer{}
	s.status.Store(http.StatusOK)
	s.body.Store(body)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		w.WriteHeader(int(s.status.Load()))
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(s.Close)
	return s
}

func newDownloader(t *testing.T, dir string) *Downloader {
	t.Helper()
	return NewDownloader(dir, httpclient.New(httpclient.Options{}), zaptest.NewLogger(t).Sugar())
}

func TestFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/file.nt", "example.com!file.nt"},
		{"http://example.com/dumps/data.nt.gz", "example.com!dumps!data.nt.gz"},
		{"http://localhost:8083/dump.nt", "localhost!8083!dump.nt"},
		{"https://example.com/export?format=nt&all=1", "example.com!export!format=nt&all=1"},
		{"https://example.com/dir/", "example.com!dir"},
		{"file:///data/dump.ttl", "!data!dump.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.url))
		})
	}
}

func TestFilename_Length(t *testing.T) {
	name := Filename("https://example.com/" + strings.Repeat("é", 300))
	assert.LessOrEqual(t, len(name), maxFilenameLength)
	assert.True(t, strings.HasPrefix(name, "example.com!é"))
}

func TestDownloader_Download(t *testing.T) {
	server := newDumpServer(t, "mock file")
	dir := t.TempDir()
	d := newDownloader(t, dir)
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	path, err := d.Download(context.Background(), dist)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Filename(dist.AccessURL)), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mock file", string(content))
}

func TestDownloader_SkipsUpToDateFile(t *testing.T) {
	server := newDumpServer(t, "mock file")
	d := newDownloader(t, t.TempDir())
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	path, err := d.Download(context.Background(), dist)
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)

	lastModified := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	dist.LastModified = &lastModified
	_, err = d.Download(context.Background(), dist)
	require.NoError(t, err)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.EqualValues(t, 1, server.requests.Load())
}

func TestDownloader_RefetchesWithoutLastModified(t *testing.T) {
	server := newDumpServer(t, "mock file")
	d := newDownloader(t, t.TempDir())
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	_, err := d.Download(context.Background(), dist)
	require.NoError(t, err)
	_, err = d.Download(context.Background(), dist)
	require.NoError(t, err)
	assert.EqualValues(t, 2, server.requests.Load())
}

func TestDownloader_RefetchesOnSizeMismatch(t *testing.T) {
	server := newDumpServer(t, "partial")
	d := newDownloader(t, t.TempDir())
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	_, err := d.Download(context.Background(), dist)
	require.NoError(t, err)

	lastModified := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	size := int64(100)
	dist.LastModified = &lastModified
	dist.ByteSize = &size
	server.body.Store("complete file")

	path, err := d.Download(context.Background(), dist)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "complete file", string(content))
	assert.EqualValues(t, 2, server.requests.Load())
}

func TestDownloader_RefetchesWhenSourceIsNewer(t *testing.T) {
	server := newDumpServer(t, "mock file")
	d := newDownloader(t, t.TempDir())
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	_, err := d.Download(context.Background(), dist)
	require.NoError(t, err)

	lastModified := time.Now().Add(time.Hour)
	dist.LastModified = &lastModified
	_, err = d.Download(context.Background(), dist)
	require.NoError(t, err)
	assert.EqualValues(t, 2, server.requests.Load())
}

func TestDownloader_HTTPError(t *testing.T) {
	server := newDumpServer(t, "")
	server.status.Store(http.StatusInternalServerError)
	d := newDownloader(t, t.TempDir())
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	_, err := d.Download(context.Background(), dist)
	require.Error(t, err)
	assert.Equal(t, "failed to download "+dist.AccessURL+": 500 Internal Server Error", err.Error())
}

func TestDownloader_EmptyDump(t *testing.T) {
	server := newDumpServer(t, "")
	dir := t.TempDir()
	d := newDownloader(t, dir)
	dist := &dataset.Distribution{AccessURL: server.URL + "/file.nt"}

	_, err := d.Download(context.Background(), dist)
	require.Error(t, err)
	assert.Equal(t, "data dump is empty", err.Error())
	assert.True(t, errors.Is(err, errors.ErrEmptyDump))

	// The empty file is left in place
	_, statErr := os.Stat(filepath.Join(dir, Filename(dist.AccessURL)))
	assert.NoError(t, statErr)
}

func TestDownloader_GetterSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dump.nt")
	require.NoError(t, os.WriteFile(src, []byte("<s> <p> <o> .\n"), 0644))
	dir := t.TempDir()
	d := newDownloader(t, dir)
	dist := &dataset.Distribution{AccessURL: "file://" + src}

	path, err := d.Download(context.Background(), dist)
	require.NoError(t, err)

	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "expected a copy, not a symlink")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<s> <p> <o> .\n", string(content))
}

func TestDownloader_MissingAccessURL(t *testing.T) {
	d := newDownloader(t, t.TempDir())
	_, err := d.Download(context.Background(), &dataset.Distribution{})
	require.Error(t, err)
}

func TestDownloader_StalledServer(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("<https://example.com/s> <https://example.com/p> \"o\" .\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	hc := httpclient.New(httpclient.Options{
		ResponseHeaderTimeout: time.Second,
		ReadIdleTimeout:       100 * time.Millisecond,
	})
	d := NewDownloader(t.TempDir(), hc, zaptest.NewLogger(t).Sugar())
	dist := &dataset.Distribution{AccessURL: server.URL + "/stalled.nt"}

	done := make(chan error, 1)
	go func() {
		_, err := d.Download(context.Background(), dist)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save "+dist.AccessURL)
	case <-time.After(5 * time.Second):
		t.Fatal("download of a stalled dump did not fail")
	}
}
