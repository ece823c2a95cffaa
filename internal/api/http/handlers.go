package http

import (
	"net/http"

	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Capacity reports session occupancy for the health endpoint.
type Capacity interface {
	Live() int
	Max() int
}

// Handlers contains the side-channel HTTP handlers.
type Handlers struct {
	layout         paths.Layout
	uploadMaxBytes int64
	capacity       Capacity
	logger         *logging.Logger
	now            func() int64
}

// Config configures Handlers.
type Config struct {
	Layout         paths.Layout
	UploadMaxBytes int64
	Capacity       Capacity
	Logger         *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	return &Handlers{
		layout:         cfg.Layout,
		uploadMaxBytes: cfg.UploadMaxBytes,
		capacity:       cfg.Capacity,
		logger:         cfg.Logger.Named("http"),
		now:            unixMilli,
	}
}

// Register mounts the /api routes on r. Authentication is the caller's
// concern.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/downloads", h.ListDownloads)
	r.GET("/downloads/:name", h.GetDownload)
	r.DELETE("/downloads/:name", h.DeleteDownload)
	r.DELETE("/downloads", h.ClearDownloads)
	r.GET("/archive", h.ArchiveDownloads)
	r.POST("/upload", h.Upload)
}

// Health handles the liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.capacity != nil {
		body["sessions"] = h.capacity.Live()
		body["maxSessions"] = h.capacity.Max()
	}
	c.JSON(http.StatusOK, body)
}

// downloadsDir resolves the caller's session download directory, writing a
// 400 response and returning false when the session id is missing or unusable.
func (h *Handlers) downloadsDir(c *gin.Context) (string, bool) {
	return h.sessionDir(c, h.layout.Downloads)
}

func (h *Handlers) uploadsDir(c *gin.Context) (string, bool) {
	return h.sessionDir(c, h.layout.Uploads)
}

func (h *Handlers) sessionDir(c *gin.Context, resolve func(string) (string, error)) (string, bool) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "Session ID required")
		return "", false
	}
	dir, err := resolve(sid)
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return dir, true
}

// fileIn resolves the :name parameter inside dir.
func fileIn(c *gin.Context, dir string) (string, bool) {
	target, err := paths.SafeJoin(dir, c.Param("name"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return target, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
}

func (h *Handlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
