package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "abc-123", want: "abc-123"},
		{raw: "../../etc", want: "etc"},
		{raw: "a_b c/d", want: "abcd"},
		{raw: "../..", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := SessionID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSessionID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeJoin(t *testing.T) {
	dir := "/srv/uploads/s1"

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "a.txt", want: "/srv/uploads/s1/a.txt"},
		{name: "../../etc/passwd", want: "/srv/uploads/s1/passwd"},
		{name: "/abs/path/file.pdf", want: "/srv/uploads/s1/file.pdf"},
		{name: `..\..\win.ini`, want: "/srv/uploads/s1/win.ini"},
		{name: "..", wantErr: true},
		{name: "", wantErr: true},
		{name: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoin(dir, tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_report__1_.pdf", SanitizeFilename("my report (1).pdf"))
	assert.Equal(t, "plain-name.txt", SanitizeFilename("plain-name.txt"))
}

func TestLayoutEnsureAndRemove(t *testing.T) {
	root := t.TempDir()
	layout := Layout{
		DownloadsRoot: filepath.Join(root, "downloads"),
		UploadsRoot:   filepath.Join(root, "uploads"),
	}

	downloads, uploads, err := layout.Ensure("sess-1")
	require.NoError(t, err)
	assert.DirExists(t, downloads)
	assert.DirExists(t, uploads)
	assert.Equal(t, filepath.Join(root, "downloads", "sess-1"), downloads)

	require.NoError(t, os.WriteFile(filepath.Join(uploads, "f.txt"), []byte("x"), 0o644))
	require.NoError(t, layout.RemoveUploads("sess-1"))
	assert.NoDirExists(t, uploads)
	assert.DirExists(t, downloads)

	_, _, err = layout.Ensure("///")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}
