package supabase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDriver struct {
	readyAt int64 // poll number that first reports ready, 0 = never
	polls   atomic.Int64
	opens   atomic.Int64
	closes  atomic.Int64
	openErr error
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Ready(context.Context) bool {
	n := d.polls.Add(1)
	return d.readyAt > 0 && n >= d.readyAt
}

func (d *fakeDriver) Open(context.Context) (backend.Backend, error) {
	d.opens.Add(1)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return backend.NewMemory(), nil
}

func (d *fakeDriver) Close() error {
	d.closes.Add(1)
	return nil
}

func testConfig(attempts int) config.Config {
	cfg := config.Default()
	cfg.ReadinessAttempts = attempts
	cfg.ReadinessInterval = time.Millisecond
	return cfg
}

func TestWaitForLibrary_ReadyOnAttemptK(t *testing.T) {
	d := &fakeDriver{readyAt: 4}
	p := NewProvider(testConfig(10), zap.NewNop(), WithDriver(d))

	require.True(t, p.WaitForLibrary(context.Background(), 10))
	require.Equal(t, int64(4), d.polls.Load())
}

func TestWaitForLibrary_NeverReady(t *testing.T) {
	d := &fakeDriver{}
	p := NewProvider(testConfig(7), zap.NewNop(), WithDriver(d))

	require.False(t, p.WaitForLibrary(context.Background(), 7))
	require.Equal(t, int64(7), d.polls.Load())
}

func TestWaitForLibrary_ContextCancelled(t *testing.T) {
	d := &fakeDriver{}
	p := NewProvider(testConfig(1000), zap.NewNop(), WithDriver(d))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, p.WaitForLibrary(ctx, 1000))
}

func TestInitialize_Success(t *testing.T) {
	d := &fakeDriver{readyAt: 2}
	p := NewProvider(testConfig(5), zap.NewNop(), WithDriver(d))
	require.Equal(t, StateUninitialized, p.State())

	_, err := p.Client()
	require.ErrorIs(t, err, ErrNotInitialized)

	client, err := p.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	require.Equal(t, StateReady, p.State())

	got, err := p.Client()
	require.NoError(t, err)
	require.Same(t, client, got)
	require.Equal(t, int64(1), d.opens.Load())
}

func TestInitialize_NeverReadyConstructsNothing(t *testing.T) {
	d := &fakeDriver{}
	p := NewProvider(testConfig(3), zap.NewNop(), WithDriver(d))

	client, err := p.Initialize(context.Background())
	require.ErrorIs(t, err, ErrLibraryUnavailable)
	require.Nil(t, client)
	require.Equal(t, StateFailed, p.State())
	require.Equal(t, int64(3), d.polls.Load())
	require.Equal(t, int64(0), d.opens.Load())

	_, err = p.Client()
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, p.Close())
	require.Equal(t, int64(1), d.closes.Load())
}

func TestInitialize_OpenFailure(t *testing.T) {
	d := &fakeDriver{readyAt: 1, openErr: errors.New("migrations failed")}
	p := NewProvider(testConfig(3), zap.NewNop(), WithDriver(d))

	_, err := p.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInvalidClientConfig)
	require.Equal(t, StateFailed, p.State())
}

func TestInitialize_SecondCallReplacesClient(t *testing.T) {
	d := &fakeDriver{readyAt: 1}
	p := NewProvider(testConfig(3), zap.NewNop(), WithDriver(d))

	first, err := p.Initialize(context.Background())
	require.NoError(t, err)
	second, err := p.Initialize(context.Background())
	require.NoError(t, err)

	require.NotSame(t, first, second)
	got, err := p.Client()
	require.NoError(t, err)
	require.Same(t, second, got)
	require.Equal(t, int64(2), d.opens.Load())
}

func TestInitialize_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Backend = "sqlite" }},
		{"empty url", func(c *config.Config) { c.SupabaseURL = "" }},
		{"relative url", func(c *config.Config) { c.SupabaseURL = "demo.supabase.co" }},
		{"key not a jwt", func(c *config.Config) { c.SupabaseAnonKey = "not-a-jwt" }},
		{"missing database url", func(c *config.Config) { c.Backend = config.BackendPostgres; c.DatabaseURL = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(1)
			tc.mutate(&cfg)
			p := NewProvider(cfg, zap.NewNop())

			client, err := p.Initialize(context.Background())
			require.ErrorIs(t, err, ErrInvalidClientConfig)
			require.Nil(t, client)
			require.Equal(t, StateFailed, p.State())
		})
	}
}

func TestInitialize_MemoryBackend(t *testing.T) {
	cfg := testConfig(2)
	cfg.Backend = config.BackendMemory
	p := NewProvider(cfg, zap.NewNop())

	client, err := p.Initialize(context.Background())
	require.NoError(t, err)
	require.IsType(t, &backend.Memory{}, client)
	require.NoError(t, p.Close())
	require.Equal(t, StateUninitialized, p.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "ready", StateReady.String())
	require.Equal(t, "state(9)", State(9).String())
}
