// Package relay streams encoded viewport frames from one render target to
// the client with acknowledgment-based backpressure.
package relay

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Sink delivers a frame to the client. It blocks until the frame is written.
type Sink interface {
	SendFrame(frame engine.Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame engine.Frame) error

func (f SinkFunc) SendFrame(frame engine.Frame) error { return f(frame) }

// Relay attaches to at most one target at a time.
type Relay struct {
	sink    Sink
	opts    engine.ScreencastOptions
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu  sync.Mutex
	cur *stream
}

// New creates a relay writing to sink.
func New(sink Sink, opts engine.ScreencastOptions, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{sink: sink, opts: opts, logger: logger}
}

// WithMetrics adds metrics tracking to the relay
func (r *Relay) WithMetrics(metrics *monitoring.Metrics) *Relay {
	r.metrics = metrics
	return r
}

// Start streams target, stopping any current stream first.
func (r *Relay) Start(ctx context.Context, target engine.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked(ctx)

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &stream{
		relay:   r,
		target:  target,
		mailbox: make(chan engine.Frame, 1),
		ctx:     streamCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.pump()

	if err := target.StartScreencast(ctx, r.opts, s.offer); err != nil {
		cancel()
		<-s.done
		return err
	}
	r.cur = s
	r.logger.Debug("Screencast started", zap.String("tab_id", string(target.ID())))
	return nil
}

// Stop ends the current stream. It is idempotent and returns once no more
// frames will be written for the old target.
func (r *Relay) Stop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(ctx)
}

func (r *Relay) stopLocked(ctx context.Context) {
	s := r.cur
	if s == nil {
		return
	}
	r.cur = nil

	s.cancel()
	<-s.done

	err := s.target.StopScreencast(ctx)
	if engine.Classify(err) == engine.Transient {
		r.logger.Debug("Screencast stop failed", zap.String("tab_id", string(s.target.ID())), zap.Error(err))
	}
}

// Current returns the id of the streamed target, or "".
func (r *Relay) Current() engine.TargetID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return ""
	}
	return r.cur.target.ID()
}

type stream struct {
	relay   *Relay
	target  engine.Target
	mailbox chan engine.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// offer places a frame in the single-slot mailbox. An undelivered older
// frame is acknowledged and dropped.
func (s *stream) offer(f engine.Frame) {
	if s.ctx.Err() != nil {
		return
	}
	for {
		select {
		case s.mailbox <- f:
			return
		default:
		}
		select {
		case old := <-s.mailbox:
			s.relay.metrics.RecordSupersededFrame()
			s.ack(old)
		default:
		}
	}
}

// pump writes frames and acknowledges each one after it has been written,
// so the engine never runs ahead of the client connection.
func (s *stream) pump() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.mailbox:
			if err := s.relay.sink.SendFrame(f); err != nil {
				s.relay.logger.Debug("Frame write failed", zap.Error(err))
				return
			}
			s.relay.metrics.RecordFrame()
			s.ack(f)
		}
	}
}

func (s *stream) ack(f engine.Frame) {
	if err := s.target.AckFrame(s.ctx, f.Seq); engine.Classify(err) == engine.Transient {
		s.relay.logger.Debug("Frame ack failed", zap.Int("seq", f.Seq), zap.Error(err))
	}
}
