package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"
	"pos_data_layer/internal/postgres"
	"pos_data_layer/internal/postgrest"

	"go.uber.org/zap"
)

// Driver knows whether its backend can be reached yet and how to build it.
type Driver interface {
	Name() string
	Ready(ctx context.Context) bool
	Open(ctx context.Context) (backend.Backend, error)
	Close() error
}

// NewDriver validates the construction inputs for cfg.Backend. Any failure
// wraps ErrInvalidClientConfig.
func NewDriver(cfg config.Config, logger *zap.Logger) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendREST, "":
		if err := validateURL(cfg.SupabaseURL); err != nil {
			return nil, err
		}
		if _, err := inspectAnonKey(cfg.SupabaseAnonKey, logger); err != nil {
			return nil, err
		}
		client, err := postgrest.NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidClientConfig, err)
		}
		return &restDriver{client: client}, nil
	case config.BackendPostgres:
		db, err := postgres.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidClientConfig, err)
		}
		return &postgresDriver{db: db, migrate: cfg.RunMigrations}, nil
	case config.BackendMemory:
		return &memoryDriver{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidClientConfig, cfg.Backend)
	}
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: %w", ErrInvalidClientConfig, postgrest.ErrMissingURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: supabase url: %w", ErrInvalidClientConfig, err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: supabase url %q must be an absolute http(s) url", ErrInvalidClientConfig, raw)
	}
	return nil
}

type restDriver struct {
	client *postgrest.Client
}

func (d *restDriver) Name() string { return config.BackendREST }

func (d *restDriver) Ready(ctx context.Context) bool {
	return d.client.Probe(ctx) == nil
}

func (d *restDriver) Open(context.Context) (backend.Backend, error) {
	return d.client, nil
}

func (d *restDriver) Close() error { return d.client.Close() }

type postgresDriver struct {
	db      *postgres.Backend
	migrate bool
}

func (d *postgresDriver) Name() string { return config.BackendPostgres }

func (d *postgresDriver) Ready(ctx context.Context) bool {
	return d.db.Probe(ctx) == nil
}

func (d *postgresDriver) Open(ctx context.Context) (backend.Backend, error) {
	if d.migrate {
		if err := d.db.RunMigrations(ctx); err != nil {
			return nil, err
		}
	}
	return d.db, nil
}

func (d *postgresDriver) Close() error { return d.db.Close() }

type memoryDriver struct{}

func (memoryDriver) Name() string { return config.BackendMemory }

func (memoryDriver) Ready(context.Context) bool { return true }

func (memoryDriver) Open(context.Context) (backend.Backend, error) {
	return backend.NewMemory(), nil
}

func (memoryDriver) Close() error { return nil }
