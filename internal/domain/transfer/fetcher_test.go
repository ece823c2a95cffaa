package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/providers/http/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowAll = GuardFunc(func(context.Context, *url.URL) error { return nil })

func newFetcher(guard URLGuard) *Fetcher {
	opts := client.DefaultOptions("fetch-test")
	opts.MaxRetries = 0
	f := NewFetcher(client.NewClient(opts), guard, 5*time.Second, nil)
	f.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return f
}

func TestFetchStoresFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	dir := t.TempDir()
	var marked string
	name, err := newFetcher(allowAll).Fetch(context.Background(), srv.URL+"/files/my%20report%20(1).pdf", dir, func(n string) { marked = n })
	require.NoError(t, err)

	assert.Equal(t, "my_report__1_.pdf", name)
	assert.Equal(t, name, marked)
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file left behind")
}

func TestFetchFallbackName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "x")
	}))
	defer srv.Close()

	name, err := newFetcher(allowAll).Fetch(context.Background(), srv.URL+"/", t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, "download-1700000000000", name)
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final.txt", http.StatusFound)
	})
	mux.HandleFunc("/final.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "done")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	name, err := newFetcher(allowAll).Fetch(context.Background(), srv.URL+"/start", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "start", name)
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	_, err := newFetcher(allowAll).Fetch(context.Background(), srv.URL+"/gone.zip", dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchGuardVeto(t *testing.T) {
	veto := errors.New("blocked")
	guard := GuardFunc(func(context.Context, *url.URL) error { return veto })

	_, err := newFetcher(guard).Fetch(context.Background(), "http://127.0.0.1/secret", t.TempDir(), nil)
	assert.ErrorIs(t, err, veto)
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := newFetcher(allowAll).Fetch(context.Background(), "http://[::1", t.TempDir(), nil)
	assert.Error(t, err)
}
