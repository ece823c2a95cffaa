package policy

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/bastion/internal/providers/http/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, h http.Handler) *Scanner {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := client.DefaultOptions("virustotal-test")
	opts.MaxRetries = 0
	return NewScanner(client.NewClient(opts), srv.URL+"/", nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestScanURLEmptyKeySkipsLookup(t *testing.T) {
	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	}))

	v, err := s.ScanURL(context.Background(), "", "https://example.com")
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Empty(t, v.ReportURL)
}

func TestScanURLKnownReport(t *testing.T) {
	target := "https://malware.example/"
	id := base64.RawURLEncoding.EncodeToString([]byte(target))

	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.Header.Get("x-apikey"))
		assert.Equal(t, "/urls/"+id, r.URL.Path)
		writeJSON(w, http.StatusOK, `{"data":{"id":"abc123","attributes":{"last_analysis_stats":{"malicious":3,"suspicious":0}}}}`)
	}))

	v, err := s.ScanURL(context.Background(), "k1", target)
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, "https://www.virustotal.com/gui/url/abc123", v.ReportURL)
}

func TestScanURLCleanReport(t *testing.T) {
	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"id":"def","attributes":{"last_analysis_stats":{"malicious":0,"suspicious":0}}}}`)
	}))

	v, err := s.ScanURL(context.Background(), "k1", "https://example.com")
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, "https://www.virustotal.com/gui/url/def", v.ReportURL)
}

func TestScanURLUnknownIsSubmitted(t *testing.T) {
	var submitted string
	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			writeJSON(w, http.StatusNotFound, `{"error":{"code":"NotFoundError"}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/urls":
			require.NoError(t, r.ParseForm())
			submitted = r.PostForm.Get("url")
			writeJSON(w, http.StatusOK, `{"data":{"type":"analysis","id":"u-feedbeef-1700000000"}}`)
		default:
			http.NotFound(w, r)
		}
	}))

	v, err := s.ScanURL(context.Background(), "k1", "https://new.example/")
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, "https://new.example/", submitted)
	assert.Equal(t, "https://www.virustotal.com/gui/url/feedbeef", v.ReportURL)
}

func TestScanURLServerErrorIsReported(t *testing.T) {
	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":"WrongCredentialsError"}}`)
	}))

	v, err := s.ScanURL(context.Background(), "bad", "https://example.com")
	assert.Error(t, err)
	assert.True(t, v.Safe)
}

func TestScanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	content := []byte("%PDF-1.4 test")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	sum := sha256.Sum256(content)

	var uploaded []byte
	s := newTestScanner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "report.pdf", hdr.Filename)
		uploaded, _ = io.ReadAll(f)
		writeJSON(w, http.StatusOK, `{"data":{"type":"analysis","id":"x"}}`)
	}))

	report, err := s.ScanFile(context.Background(), "k1", path)
	require.NoError(t, err)
	assert.Equal(t, content, uploaded)
	assert.Equal(t, "https://www.virustotal.com/gui/file/"+hex.EncodeToString(sum[:]), report)
}

func TestScanFileEmptyKey(t *testing.T) {
	s := newTestScanner(t, http.NotFoundHandler())
	report, err := s.ScanFile(context.Background(), "", "/does/not/matter")
	require.NoError(t, err)
	assert.Empty(t, report)
}
