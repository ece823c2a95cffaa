package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const multipartMemory = 8 << 20

// Upload stores multipart "files" in the session's upload area as
// <unixms>-<sanitized name> and returns the stored names, which the client
// then passes to file_provided.
func (h *Handlers) Upload(c *gin.Context) {
	dir, ok := h.uploadsDir(c)
	if !ok {
		return
	}
	if h.uploadMaxBytes > 0 {
		// Room for every part's headers on top of the file limit.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadMaxBytes+multipartMemory)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		badRequest(c, err.Error())
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "No files uploaded")
		return
	}
	for _, fh := range files {
		if h.uploadMaxBytes > 0 && fh.Size > h.uploadMaxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("%s exceeds %d bytes", fh.Filename, h.uploadMaxBytes),
			})
			return
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.internalError(c, "Failed to store upload", err)
		return
	}

	stamp := strconv.FormatInt(h.now(), 10)
	names := make([]string, 0, len(files))
	for _, fh := range files {
		name := stamp + "-" + paths.SanitizeFilename(filepath.Base(fh.Filename))
		if err := c.SaveUploadedFile(fh, filepath.Join(dir, name)); err != nil {
			h.internalError(c, "Failed to store upload", err)
			return
		}
		names = append(names, name)
	}

	h.logger.Debug("Stored uploads", zap.String("dir", dir), zap.Strings("files", names))
	c.JSON(http.StatusOK, gin.H{"filenames": names})
}

func unixMilli() int64 { return time.Now().UnixMilli() }
