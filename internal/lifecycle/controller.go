// Package lifecycle sequences startup and shutdown of the commit/reveal
// coordinator: initialization before attachment on the way up, detachment
// before drain on the way down.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned for work submitted after Stop has begun.
var ErrShuttingDown = eris.New("shutting down")

// DefaultAttachInterval is the delay between listener attach retries.
const DefaultAttachInterval = 5 * time.Second

// CommitModule is the commit side the controller brings up.
type CommitModule interface {
	Init(ctx context.Context) error
}

// RevealListener is the event side the controller attaches once the commit
// module is ready. Attach reports whether the listener is now attached.
type RevealListener interface {
	Attach(ctx context.Context) (bool, error)
	Detach()
}

// Controller owns the startup and shutdown order of the coordinator.
type Controller struct {
	committer      CommitModule
	listener       RevealListener
	grace          time.Duration
	attachInterval time.Duration

	mu         sync.Mutex
	stopping   bool
	cancel     context.CancelFunc
	attached   chan struct{}
	attachOnce sync.Once
	inflight   sync.WaitGroup
}

// New creates a controller. grace bounds the in-flight drain during Stop.
func New(committer CommitModule, listener RevealListener, grace time.Duration) *Controller {
	return &Controller{
		committer:      committer,
		listener:       listener,
		grace:          grace,
		attachInterval: DefaultAttachInterval,
		attached:       make(chan struct{}),
	}
}

// Start initializes the commit module, then supervises listener attachment
// in the background until the controller stops. An initialization failure is
// returned to the caller; Start may be called again after a failure.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.committer.Init(ctx); err != nil {
		return eris.Wrap(err, "lifecycle: init commit module")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.attachLoop(runCtx)
	return nil
}

// attachLoop supervises the listener for the controller's whole lifetime.
// Attach is idempotent on an already-attached listener, so calling it every
// tick both drives the initial attachment and re-attaches after the
// subscription drops mid-run.
func (c *Controller) attachLoop(ctx context.Context) {
	ticker := time.NewTicker(c.attachInterval)
	defer ticker.Stop()

	attempt := 1
	for {
		ok, err := c.listener.Attach(ctx)
		switch {
		case ok:
			c.attachOnce.Do(func() {
				zap.L().Info("reveal listener attached", zap.Int("attempt", attempt))
				close(c.attached)
			})
			attempt = 1
		case err != nil:
			zap.L().Warn("reveal listener attach failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			attempt++
		default:
			attempt++
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Attached reports whether the listener has attached at least once.
func (c *Controller) Attached() bool {
	select {
	case <-c.attached:
		return true
	default:
		return false
	}
}

// Track runs fn as an in-flight operation that Stop will wait for, up to
// the configured grace. Work submitted after Stop begins is rejected.
func (c *Controller) Track(fn func() error) error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return ErrShuttingDown
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	return fn()
}

// Stop detaches the listener first so no new reveals arrive, then drains
// in-flight operations for up to the grace period before giving up.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.listener.Detach()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		zap.L().Info("shutdown complete")
	case <-time.After(c.grace):
		zap.L().Warn("shutdown grace elapsed, abandoning in-flight work",
			zap.Duration("grace", c.grace),
		)
	}
}
