package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/bastion/internal/domain/relay"
	"github.com/GriffinCanCode/bastion/internal/domain/tab"
	"github.com/GriffinCanCode/bastion/internal/domain/transfer"
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"go.uber.org/zap"
)

const teardownTimeout = 10 * time.Second

// ErrClosed is returned when a command is delivered to a closed session.
var ErrClosed = errors.New("session closed")

// Session owns one control connection's tabs, frame relay and transfers.
// Commands and engine events are handled on a single loop goroutine.
type Session struct {
	id     string
	out    Outbound
	deps   Deps
	opts   Options
	logger *logging.Logger

	// Owned by the loop.
	config   Config
	vtKey    string
	viewport [2]int
	registry *tab.Registry

	relay     *relay.Relay
	uploads   *transfer.Uploads
	watcher   *transfer.Watcher
	browser   engine.Context
	downloads string
	uploadDir string
	ticket    Ticket

	commands chan Command
	queue    *queue
	running  atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	bg       sync.WaitGroup
	done     chan struct{}
	closeErr error
	onClose  func(*Session)
}

// New prepares a session. Start must be called before commands are delivered.
func New(id string, out Outbound, ticket Ticket, deps Deps, opts Options) *Session {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = DefaultOptions().MaxTabs
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultOptions().CommandTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultOptions().NavigationTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := deps.Logger.Session(id)
	s := &Session{
		id:       id,
		out:      out,
		deps:     deps,
		opts:     opts,
		logger:   logger,
		config:   Config{Language: opts.Language},
		vtKey:    opts.VTKey,
		viewport: [2]int{opts.ViewportWidth, opts.ViewportHeight},
		registry: tab.NewRegistry(opts.MaxTabs),
		ticket:   ticket,
		commands: make(chan Command, 64),
		queue:    newQueue(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.relay = relay.New(out, opts.Screencast, logger.Logger).WithMetrics(deps.Metrics)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Config returns a copy of the session configuration. It is only safe to
// call from tests after the loop has settled.
func (s *Session) Config() Config { return s.config }

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start allocates the session's directories and browsing context, announces
// the session and starts the dispatch loop. On error everything allocated so
// far is released, including the ticket.
func (s *Session) Start(ctx context.Context) error {
	downloads, uploads, err := s.deps.Layout.Ensure(s.id)
	if err != nil {
		s.abort()
		return err
	}
	s.downloads, s.uploadDir = downloads, uploads
	s.uploads = transfer.NewUploads(uploads, s.opts.CleanupDelay, s.logger.Logger)

	s.watcher, err = transfer.NewWatcher(downloads, s.opts.SettleDelay, s.onDownload, s.logger.Logger)
	if err != nil {
		s.abort()
		return err
	}

	s.browser, err = s.deps.Engine.NewContext(ctx, engine.ContextOptions{
		DownloadDir: downloads,
		UserAgent:   s.opts.UserAgent,
		OnEvent:     s.onEngineEvent,
	})
	if err != nil {
		s.abort()
		return fmt.Errorf("open browsing context: %w", err)
	}

	s.deps.Metrics.SessionOpened()
	s.logger.Info("Session started", zap.String("downloads", downloads))
	s.emit(sessionReady(s.id))

	s.running.Store(true)
	go s.loop()
	return nil
}

// Deliver decodes and queues one inbound message. Malformed messages are
// logged and dropped.
func (s *Session) Deliver(ctx context.Context, data []byte) error {
	cmd, err := DecodeCommand(data)
	if err != nil {
		s.logger.Debug("Dropping malformed message", zap.Error(err))
		return nil
	}
	return s.Dispatch(ctx, cmd)
}

// Dispatch queues a command. It blocks while the loop is busy.
func (s *Session) Dispatch(ctx context.Context, cmd Command) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the session down and waits for teardown to finish. It is
// idempotent.
func (s *Session) Close() error {
	s.cancel()
	if !s.running.Load() {
		return nil
	}
	<-s.done
	return s.closeErr
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		case <-s.queue.wait():
			for _, fn := range s.queue.drain() {
				fn()
			}
		}
	}
}

// teardown releases everything the session owns, in dependency order.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	s.relay.Stop(ctx)

	n := s.registry.Len()
	s.registry.CloseAll(ctx)
	for range n {
		s.deps.Metrics.TabClosed()
	}

	for _, id := range s.uploads.PurgeAll() {
		s.logger.Debug("Discarding pending file request", zap.String("tab_id", string(id)))
	}
	s.uploads.Close()

	var errs []error
	if err := s.watcher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.browser.Close(); engine.Classify(err) == engine.Transient {
		errs = append(errs, err)
	}

	s.bg.Wait()

	if err := s.deps.Layout.RemoveUploads(s.id); err != nil {
		errs = append(errs, err)
	}
	s.releaseTicket()
	s.deps.Metrics.SessionClosed()
	if s.onClose != nil {
		s.onClose(s)
	}

	s.closeErr = errors.Join(errs...)
	s.logger.Info("Session closed", zap.Error(s.closeErr))
}

// abort undoes a partial Start.
func (s *Session) abort() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.uploads != nil {
		s.uploads.Close()
	}
	if s.uploadDir != "" {
		_ = s.deps.Layout.RemoveUploads(s.id)
	}
	s.releaseTicket()
	s.cancel()
	close(s.done)
}

func (s *Session) releaseTicket() {
	if s.ticket != nil {
		s.ticket.Release()
	}
}

// post schedules fn on the loop. It never blocks.
func (s *Session) post(fn func()) {
	s.queue.push(fn)
}

// spawn runs fn in the background; teardown waits for it.
func (s *Session) spawn(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) emit(msg Message) {
	if err := s.out.Send(msg); err != nil {
		s.logger.Debug("Event write failed", zap.String("type", msg.MessageType()), zap.Error(err))
	}
}

// emitFor emits an event about a tab unless the tab has gone away.
func (s *Session) emitFor(id engine.TargetID, msg Message) {
	if _, ok := s.registry.Get(id); !ok {
		return
	}
	s.emit(msg)
}

// postFor queues an event about a tab from a worker goroutine.
func (s *Session) postFor(id engine.TargetID, msg Message) {
	s.post(func() { s.emitFor(id, msg) })
}

// queue is an unbounded FIFO of loop callbacks fed by engine and worker
// goroutines.
type queue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) wait() <-chan struct{} {
	return q.signal
}

func (q *queue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
