package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidFilename  = errors.New("invalid filename")
)

var (
	unsafeSessionChars  = regexp.MustCompile(`[^A-Za-z0-9-]`)
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// SessionID strips everything outside [A-Za-z0-9-] from a client supplied id.
func SessionID(raw string) (string, error) {
	clean := unsafeSessionChars.ReplaceAllString(raw, "")
	if clean == "" {
		return "", ErrInvalidSessionID
	}
	return clean, nil
}

// SanitizeFilename replaces characters outside [a-zA-Z0-9.-] with underscores.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// SafeJoin joins only the final element of name onto dir.
func SafeJoin(dir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return filepath.Join(dir, base), nil
}

// Layout resolves per-session directories under the configured roots.
type Layout struct {
	DownloadsRoot string
	UploadsRoot   string
}

// Downloads returns the session's download directory.
func (l Layout) Downloads(sessionID string) (string, error) {
	return sessionDir(l.DownloadsRoot, sessionID)
}

// Uploads returns the session's upload directory.
func (l Layout) Uploads(sessionID string) (string, error) {
	return sessionDir(l.UploadsRoot, sessionID)
}

// Ensure creates both session directories.
func (l Layout) Ensure(sessionID string) (downloads, uploads string, err error) {
	if downloads, err = l.Downloads(sessionID); err != nil {
		return "", "", err
	}
	if uploads, err = l.Uploads(sessionID); err != nil {
		return "", "", err
	}
	for _, dir := range []string{downloads, uploads} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return downloads, uploads, nil
}

// RemoveUploads deletes the session's upload directory and its contents.
func (l Layout) RemoveUploads(sessionID string) error {
	dir, err := l.Uploads(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func sessionDir(root, sessionID string) (string, error) {
	clean, err := SessionID(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, clean), nil
}
