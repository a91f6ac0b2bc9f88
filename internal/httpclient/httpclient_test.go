package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

func TestDownloadToFileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")

	res, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), res.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFileUsesConfiguredUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getdiff-tuning-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000, UserAgent: "getdiff-tuning-test/1.0"})
	dest := filepath.Join(t.TempDir(), "out.txt")

	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.NoError(t, err)
}

func TestDownloadToFileSendsCookie(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "token=abc")
	require.NoError(t, err)
	assert.Equal(t, "token=abc", gotCookie)
}

func TestDownloadToFile404IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.Error(t, err)

	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, e.Code)
	assert.Equal(t, errkind.NotFound, e.Message)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadToFile429IsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.Error(t, err)
	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.RateLimited, e.Message)
}

func TestDownloadToFileBadContentLengthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "999")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), errkind.BadSizeDownload)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadToFile503IsTransientServer(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// The 60-second sleep between attempts is far too slow for a unit test;
	// directly exercise DownloadToFile's classification instead of the
	// retry wrapper's timing.
	c := New(Config{RequestsPerSec: 1000})
	dest := filepath.Join(t.TempDir(), "out.txt")
	_, err := c.DownloadToFile(context.Background(), srv.URL, dest, "")
	require.Error(t, err)
	e, ok := errkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errkind.TransientServer, e.Message)
}
