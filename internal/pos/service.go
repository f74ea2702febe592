// Package pos is the data-access facade of the point-of-sale app. Each
// operation fetches the shared backend client, runs one remote query and
// folds the outcome into a Result.
package pos

import (
	"context"
	"errors"
	"time"
	_ "time/tzdata"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"
	"pos_data_layer/internal/postgrest"

	"go.uber.org/zap"
)

// manilaOffset is used when the configured zone cannot be loaded.
const manilaOffset = 8 * 60 * 60

// ClientSource hands out the initialized backend client.
type ClientSource interface {
	Client() (backend.Backend, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	source        ClientSource
	location      *time.Location
	hashPasswords bool
	now           func() time.Time
	logger        *zap.Logger
}

func NewService(source ClientSource, cfg config.Config, logger *zap.Logger, opts ...Option) *Service {
	logger = logger.Named("pos")

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using fixed offset",
			zap.String("timezone", cfg.Timezone),
			zap.Error(err),
		)
		location = time.FixedZone(cfg.Timezone, manilaOffset)
	}

	s := &Service{
		source:        source,
		location:      location,
		hashPasswords: cfg.HashPasswords,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run acquires the client and converts whatever fn returns into a Result.
func run[T any](ctx context.Context, s *Service, op string, fn func(context.Context, backend.Backend) (T, error)) Result[T] {
	client, err := s.source.Client()
	if err != nil {
		s.logger.Error(op+" error", zap.Error(err))
		return fail[T](err)
	}

	data, err := fn(ctx, client)
	if err != nil {
		s.logger.Error(op+" error", zap.Error(err))
		return fail[T](err)
	}
	return ok(data)
}

// errorMessage is the text a failed envelope carries.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	case errors.Is(err, ErrInvalidPassword):
		return "Invalid password"
	}
	var apiErr *postgrest.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (s *Service) today() string {
	return s.now().UTC().Format(DateLayout)
}

func (s *Service) timestamp() string {
	return s.now().In(s.location).Format(TimestampLayout)
}
