// Package supabase owns the backend client handle: it validates the
// connection settings, waits for the backend to answer and hands the ready
// client to whoever asks for it.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts  = 100
	DefaultPollInterval = 50 * time.Millisecond
)

var (
	ErrNotInitialized      = errors.New("backend client not initialized")
	ErrLibraryUnavailable  = errors.New("backend did not become available")
	ErrInvalidClientConfig = errors.New("invalid client configuration")
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Option func(*Provider)

// WithDriver replaces the driver NewDriver would build from the config.
func WithDriver(d Driver) Option {
	return func(p *Provider) { p.driver = d }
}

type Provider struct {
	cfg         config.Config
	driver      Driver
	maxAttempts int
	interval    time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	state  State
	client backend.Backend
}

func NewProvider(cfg config.Config, logger *zap.Logger, opts ...Option) *Provider {
	p := &Provider{
		cfg:         cfg,
		maxAttempts: cfg.ReadinessAttempts,
		interval:    cfg.ReadinessInterval,
		logger:      logger.Named("supabase"),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitForLibrary polls the driver once per interval. It reports true on the
// first poll that finds the backend ready and false once maxAttempts polls
// have failed or ctx is done.
func (p *Provider) WaitForLibrary(ctx context.Context, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = p.maxAttempts
	}
	p.mu.RLock()
	driver := p.driver
	p.mu.RUnlock()
	if driver == nil {
		p.logger.Error("no driver configured")
		return false
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			p.logger.Error("stopped waiting for backend", zap.Int("attempt", attempt-1), zap.Error(ctx.Err()))
			return false
		case <-ticker.C:
		}

		p.logger.Info("checking backend",
			zap.String("backend", driver.Name()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)
		if driver.Ready(ctx) {
			p.logger.Info("backend available", zap.Int("attempt", attempt))
			return true
		}
		if attempt >= maxAttempts {
			p.logger.Error("backend unavailable after max attempts", zap.Int("max_attempts", maxAttempts))
			return false
		}
	}
}

// Initialize waits for the backend and stores the client. Calling it again
// repeats the whole sequence and replaces the stored client; callers are
// expected to run it once at startup.
func (p *Provider) Initialize(ctx context.Context) (backend.Backend, error) {
	p.logger.Info("starting initialization")
	p.setState(StateInitializing)

	p.mu.RLock()
	driver := p.driver
	p.mu.RUnlock()
	if driver == nil {
		d, err := NewDriver(p.cfg, p.logger)
		if err != nil {
			return p.fail(err)
		}
		driver = d
		p.mu.Lock()
		p.driver = d
		p.mu.Unlock()
	}

	if !p.WaitForLibrary(ctx, p.maxAttempts) {
		return p.fail(fmt.Errorf("%w: %s after %d attempts", ErrLibraryUnavailable, driver.Name(), p.maxAttempts))
	}

	p.logger.Info("creating client", zap.String("backend", driver.Name()))
	client, err := driver.Open(ctx)
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", ErrInvalidClientConfig, err))
	}

	p.mu.Lock()
	if p.client != nil && p.client != client {
		p.logger.Warn("replacing existing client")
	}
	p.client = client
	p.state = StateReady
	p.mu.Unlock()

	p.logger.Info("client created", zap.Bool("ready", client != nil))
	return client, nil
}

// Client returns the stored handle. It never initializes on its own.
func (p *Provider) Client() (backend.Backend, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		p.logger.Error("not initialized, call Initialize first")
		return nil, ErrNotInitialized
	}
	return client, nil
}

func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Provider) Close() error {
	p.mu.Lock()
	client := p.client
	driver := p.driver
	p.client = nil
	p.driver = nil
	p.state = StateUninitialized
	p.mu.Unlock()

	switch {
	case client != nil:
		return client.Close()
	case driver != nil:
		return driver.Close()
	default:
		return nil
	}
}

func (p *Provider) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Provider) fail(err error) (backend.Backend, error) {
	p.logger.Error("initialization failed", zap.Error(err))
	p.mu.Lock()
	if p.client == nil {
		p.state = StateFailed
	} else {
		p.state = StateReady
	}
	p.mu.Unlock()
	return nil, err
}
