package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) uploadDir() string {
	return filepath.Join(h.layout.UploadsRoot, "S1")
}

func (h *harness) downloadDir() string {
	return filepath.Join(h.layout.DownloadsRoot, "S1")
}

func TestFileRequestRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	target := h.createTab()
	id := target.ID()

	path := filepath.Join(h.uploadDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	target.OpenChooser(false)
	require.Eventually(t, func() bool { return h.out.has(fileRequested(id, false)) }, waitFor, tick)

	h.send(Command{Type: CmdFileProvided, ID: id, Filenames: []string{"a.txt"}})
	require.Eventually(t, func() bool { return len(target.Accepted()) == 1 }, waitFor, tick)
	assert.Equal(t, [][]string{{path}}, target.Accepted())

	// The consumed upload is removed after the grace delay.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, waitFor, tick)

	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	h.send(Command{Type: CmdFileProvided, ID: id, Filenames: []string{"a.txt"}})
	settle()
	assert.Len(t, target.Accepted(), 1)
}

func TestFileProvidedWithMissingFilesKeepsRequest(t *testing.T) {
	h := newHarness(t, nil)
	target := h.createTab()
	id := target.ID()

	target.OpenChooser(true)
	require.Eventually(t, func() bool { return h.out.has(fileRequested(id, true)) }, waitFor, tick)

	h.send(Command{Type: CmdFileProvided, ID: id, Filenames: []string{"late.txt"}})
	settle()
	assert.Empty(t, target.Accepted())

	require.NoError(t, os.WriteFile(filepath.Join(h.uploadDir(), "late.txt"), []byte("x"), 0o644))
	h.send(Command{Type: CmdFileProvided, ID: id, Filenames: []string{"late.txt"}})
	assert.Eventually(t, func() bool { return len(target.Accepted()) == 1 }, waitFor, tick)
}

func TestClosingTabPurgesFileRequest(t *testing.T) {
	h := newHarness(t, nil)
	target := h.createTab()
	id := target.ID()
	require.NoError(t, os.WriteFile(filepath.Join(h.uploadDir(), "a.txt"), []byte("a"), 0o644))

	target.OpenChooser(false)
	require.Eventually(t, func() bool { return h.out.has(fileRequested(id, false)) }, waitFor, tick)

	h.send(Command{Type: CmdCloseTab, ID: id})
	require.Eventually(t, target.Closed, waitFor, tick)

	h.send(Command{Type: CmdFileProvided, ID: id, Filenames: []string{"a.txt"}})
	settle()
	assert.Empty(t, target.Accepted())
	assert.NotContains(t, target.Calls(), "AcceptFiles")
}

func TestCancelFileRequest(t *testing.T) {
	h := newHarness(t, nil)
	target := h.createTab()
	id := target.ID()

	h.send(Command{Type: CmdCancelFileRequest, ID: id})
	settle()
	assert.Zero(t, target.Canceled())

	target.OpenChooser(false)
	require.Eventually(t, func() bool { return h.out.has(fileRequested(id, false)) }, waitFor, tick)
	h.send(Command{Type: CmdCancelFileRequest, ID: id})
	h.send(Command{Type: CmdCancelFileRequest, ID: id})
	require.Eventually(t, func() bool { return target.Canceled() == 1 }, waitFor, tick)
	settle()
	assert.Equal(t, 1, target.Canceled())
}

func TestManualFileRequest(t *testing.T) {
	h := newHarness(t, nil)
	target := h.createTab()
	h.activate(target)

	h.send(Command{Type: CmdManualFileRequest})
	assert.Eventually(t, func() bool { return h.out.has(fileRequested(target.ID(), true)) }, waitFor, tick)
}

func TestBrowserDownloadIsReportedOnce(t *testing.T) {
	scanner := &fakeScanner{report: "https://vt/file"}
	h := newHarness(t, func(d *Deps, o *Options) {
		d.Scanner = scanner
		o.VTKey = "k"
	})
	on := true
	h.send(Command{Type: CmdUpdateConfig, Config: &ConfigUpdate{ScanDownloads: &on}})

	f, err := os.Create(filepath.Join(h.downloadDir(), "report.pdf"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.WriteString("data")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return h.out.has(downloadFinished("report.pdf")) }, waitFor, tick)
	require.Eventually(t, func() bool { return h.out.has(threatReport("https://vt/file", "report.pdf")) }, waitFor, tick)
	settle()
	assert.Equal(t, 1, h.out.count(EvtDownloadFinished))
	assert.Less(t, h.out.indexOf(downloadFinished("report.pdf"), 0), h.out.indexOf(threatReport("https://vt/file", "report.pdf"), 0))
}

type fileFetcher struct {
	err error
}

func (f fileFetcher) Fetch(_ context.Context, _ string, dir string, mark func(string)) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	mark("fetched.bin")
	return "fetched.bin", os.WriteFile(filepath.Join(dir, "fetched.bin"), []byte("x"), 0o644)
}

func TestDownloadURL(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) { d.Fetcher = fileFetcher{} })

	h.send(Command{Type: CmdDownloadURL, URL: "https://example.com/fetched.bin"})
	require.Eventually(t, func() bool { return h.out.has(downloadFinished("fetched.bin")) }, waitFor, tick)
	settle()
	assert.Equal(t, 1, h.out.count(EvtDownloadFinished))
}

func TestDownloadURLFailure(t *testing.T) {
	blocked := &policy.BlockedError{URL: "http://10.0.0.1/", Reason: "private address"}
	h := newHarness(t, func(d *Deps, _ *Options) { d.Fetcher = fileFetcher{err: blocked} })

	h.send(Command{Type: CmdDownloadURL, URL: "http://10.0.0.1/"})
	assert.Eventually(t, func() bool { return h.out.has(downloadFailed(blocked)) }, waitFor, tick)
}

func TestDownloadURLWithoutFetcher(t *testing.T) {
	h := newHarness(t, nil)
	h.send(Command{Type: CmdDownloadURL, URL: "https://example.com/x"})
	assert.Eventually(t, func() bool { return h.out.has(downloadFailed(errors.New("downloads are disabled"))) }, waitFor, tick)
}
