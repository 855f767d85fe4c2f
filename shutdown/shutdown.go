// Package shutdown provides phased graceful shutdown for the
// coordination engine: timers stop before external bridges drain.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ErrHandlerFailed indicates one or more handlers failed during
// shutdown.
var ErrHandlerFailed = errors.New("one or more shutdown handlers failed")

// Handler is a component teardown step. The context is cancelled when
// the shutdown timeout is reached.
type Handler func(ctx context.Context) error

// Config configures the coordinator.
type Config struct {
	// DefaultTimeout is used by ShutdownWithTimeout when no timeout is
	// given. Default: 30 seconds.
	DefaultTimeout time.Duration

	// DefaultPhase is assigned to handlers registered without a phase.
	// Default: 100.
	DefaultPhase int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		DefaultPhase:   100,
	}
}

// registration ties a handler to its ordering phase.
type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers in ascending phase order, once.
// Handlers within a phase run sequentially in registration order; a
// failing handler never prevents the rest from running.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration
	once     sync.Once
	err      error
	done     chan struct{}
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if config.DefaultPhase == 0 {
		config.DefaultPhase = DefaultConfig().DefaultPhase
	}
	return &Coordinator{
		config: config,
		done:   make(chan struct{}),
	}
}

// RegisterFunc adds a handler at the default phase.
func (c *Coordinator) RegisterFunc(name string, fn Handler) {
	c.RegisterFuncWithPhase(name, fn, c.config.DefaultPhase)
}

// RegisterFuncWithPhase adds a handler at a specific phase. Lower
// phases shut down first.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: fn, phase: phase})
}

// Shutdown runs all handlers once. Later calls return the recorded
// outcome without re-running anything.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by a timeout. Zero means
// the configured default.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-ch
		c.ShutdownWithTimeout(0)
	}()
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed []string
	for _, reg := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := reg.handler(ctx); err != nil {
			failed = append(failed, reg.name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", ErrHandlerFailed, failed)
	}
	return nil
}
