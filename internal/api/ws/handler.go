package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/bastion/internal/api/middleware"
	"github.com/GriffinCanCode/bastion/internal/domain/admission"
	"github.com/GriffinCanCode/bastion/internal/domain/session"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds control channel limits.
type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the production keepalive and size limits.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Admitter reserves a session slot for a credential.
type Admitter interface {
	TryAdmit(credential string) (*admission.Ticket, error)
}

// Opener starts sessions.
type Opener interface {
	Open(ctx context.Context, requestedID string, out session.Outbound, ticket session.Ticket) (*session.Session, error)
}

// Handler upgrades admitted requests and runs their sessions.
type Handler struct {
	admit    Admitter
	sessions Opener
	cfg      Config
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a control channel handler.
func NewHandler(admit Admitter, sessions Opener, cfg Config, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	return &Handler{
		admit:    admit,
		sessions: sessions,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			// The credential check replaces the origin check; the viewer
			// is routinely served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleConnection admits, upgrades and serves one control connection.
func (h *Handler) HandleConnection(c *gin.Context) {
	ticket, err := h.admit.TryAdmit(middleware.Credential(c.Request))
	switch {
	case errors.Is(err, admission.ErrInvalidCredential):
		h.metrics.RecordAdmission("unauthorized")
		h.logger.Warn("Rejected control connection", zap.String("remote", c.ClientIP()), zap.Error(err))
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	case errors.Is(err, admission.ErrOverCapacity):
		h.metrics.RecordAdmission("over_capacity")
		h.logger.Warn("Rejected control connection", zap.String("remote", c.ClientIP()), zap.Error(err))
		c.String(http.StatusServiceUnavailable, "Max sessions reached")
		return
	case err != nil:
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	h.metrics.RecordAdmission("admitted")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ticket.Release()
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	out := newConn(ws, h.cfg.WriteWait, h.metrics)
	s, err := h.sessions.Open(c.Request.Context(), c.Query("sessionId"), out, ticket)
	if err != nil {
		h.logger.Error("Failed to open session", zap.Error(err))
		out.closeWith(websocket.CloseInternalServerErr, "session unavailable")
		return
	}

	h.serve(s, ws, out)
}

// serve pumps inbound messages into s until the peer leaves, the session
// ends or keepalive fails. The session is closed on return.
func (h *Handler) serve(s *session.Session, ws *websocket.Conn, out *conn) {
	logger := h.logger.Session(s.ID())
	stop := make(chan struct{})
	defer func() {
		close(stop)
		if err := s.Close(); err != nil {
			logger.Debug("Session teardown reported errors", zap.Error(err))
		}
	}()

	go h.keepalive(s, out, stop)

	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	ctx := context.Background()
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Control connection read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		h.metrics.RecordWSMessage("in", commandLabel(data))

		if err := s.Deliver(ctx, data); err != nil {
			return
		}
	}
}

// keepalive pings the peer and closes the socket when the session ends on
// its own, which unblocks the reader.
func (h *Handler) keepalive(s *session.Session, out *conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-s.Done():
			out.closeWith(websocket.CloseGoingAway, "session closed")
			_ = out.ws.Close()
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				_ = out.ws.Close()
				return
			}
		}
	}
}

// commandLabel extracts the message type for metrics without a full decode.
func commandLabel(data []byte) string {
	node, err := sonic.Get(data, "type")
	if err != nil {
		return "malformed"
	}
	typ, err := node.String()
	if err != nil || !session.KnownCommand(typ) {
		return "unknown"
	}
	return typ
}
