package http

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/GriffinCanCode/bastion/internal/domain/transfer"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// FileInfo describes one stored download.
type FileInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	ContentType string    `json:"contentType"`
}

// ListDownloads lists completed downloads, newest first. In-progress and
// hidden files are left out.
func (h *Handlers) ListDownloads(c *gin.Context) {
	dir, ok := h.downloadsDir(c)
	if !ok {
		return
	}
	files, err := listFiles(dir)
	if err != nil {
		h.internalError(c, "Failed to list downloads", err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// GetDownload serves one download as an attachment.
func (h *Handlers) GetDownload(c *gin.Context) {
	dir, ok := h.downloadsDir(c)
	if !ok {
		return
	}
	target, ok := fileIn(c, dir)
	if !ok {
		return
	}
	if !isRegular(target) {
		notFound(c)
		return
	}
	c.FileAttachment(target, filepath.Base(target))
}

// DeleteDownload removes one download.
func (h *Handlers) DeleteDownload(c *gin.Context) {
	dir, ok := h.downloadsDir(c)
	if !ok {
		return
	}
	target, ok := fileIn(c, dir)
	if !ok {
		return
	}
	if !isRegular(target) {
		notFound(c)
		return
	}
	if err := os.Remove(target); err != nil {
		h.internalError(c, "Failed to delete download", err)
		return
	}
	c.Status(http.StatusOK)
}

// ClearDownloads removes every file in the session's download area.
func (h *Handlers) ClearDownloads(c *gin.Context) {
	dir, ok := h.downloadsDir(c)
	if !ok {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.internalError(c, "Failed to clear downloads", err)
		return
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			h.logger.Warn("Failed to remove download", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ArchiveDownloads streams a zip of every completed download.
func (h *Handlers) ArchiveDownloads(c *gin.Context) {
	dir, ok := h.downloadsDir(c)
	if !ok {
		return
	}
	files, err := listFiles(dir)
	if err != nil {
		h.internalError(c, "Failed to list downloads", err)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="downloads-`+filepath.Base(dir)+`.zip"`)
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	for _, f := range files {
		if err := addToArchive(zw, filepath.Join(dir, f.Name), f); err != nil {
			// Headers are gone; the truncated archive is all the client gets.
			h.logger.Warn("Archive aborted", zap.String("file", f.Name), zap.Error(err))
			_ = c.Error(err)
			return
		}
	}
	if err := zw.Close(); err != nil {
		h.logger.Warn("Failed to finish archive", zap.Error(err))
		_ = c.Error(err)
	}
}

func addToArchive(zw *zip.Writer, path string, info FileInfo) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     info.Name,
		Method:   zip.Deflate,
		Modified: info.ModTime,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func listFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || transfer.Ignored(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:        e.Name(),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: contentType(filepath.Join(dir, e.Name())),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func contentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
