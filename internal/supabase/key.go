package supabase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	roleAnon    = "anon"
	roleService = "service_role"
)

var ErrServiceRoleKey = errors.New("service_role key must not be used by a client")

type keyClaims struct {
	Role string `json:"role"`
	Ref  string `json:"ref"`
	jwt.RegisteredClaims
}

// inspectAnonKey decodes the API key without verifying its signature; the
// server does that. It only guards against shipping a secret key.
func inspectAnonKey(key string, logger *zap.Logger) (*keyClaims, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: supabase api key is required", ErrInvalidClientConfig)
	}

	claims := &keyClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return nil, fmt.Errorf("%w: api key is not a JWT: %w", ErrInvalidClientConfig, err)
	}

	switch claims.Role {
	case roleService:
		return nil, fmt.Errorf("%w: %w", ErrInvalidClientConfig, ErrServiceRoleKey)
	case roleAnon:
	default:
		logger.Warn("api key carries an unexpected role", zap.String("role", claims.Role))
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		logger.Warn("api key is expired", zap.Time("expires_at", claims.ExpiresAt.Time))
	}

	logger.Debug("api key inspected",
		zap.String("role", claims.Role),
		zap.String("project_ref", claims.Ref),
	)
	return claims, nil
}
