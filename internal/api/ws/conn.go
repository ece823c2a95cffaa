package ws

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/bastion/internal/domain/session"
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"github.com/gorilla/websocket"
)

// conn serializes writes to a websocket and satisfies session.Outbound.
type conn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	metrics   *monitoring.Metrics

	mu sync.Mutex
}

func newConn(ws *websocket.Conn, writeWait time.Duration, metrics *monitoring.Metrics) *conn {
	return &conn{ws: ws, writeWait: writeWait, metrics: metrics}
}

// Send encodes and writes one event.
func (c *conn) Send(m session.Message) error {
	data, err := session.Encode(m)
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("out", m.MessageType())
	return nil
}

// SendFrame writes one screencast frame.
func (c *conn) SendFrame(f engine.Frame) error {
	return c.Send(session.NewFrame(f))
}

func (c *conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// closeWith sends a close frame. Errors are irrelevant since the socket is
// closed right after.
func (c *conn) closeWith(code int, text string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(c.writeWait))
}
