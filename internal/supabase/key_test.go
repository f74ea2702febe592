package supabase

import (
	"testing"
	"time"

	"pos_data_layer/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signKey(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  "supabase",
		"ref":  "demo",
		"role": role,
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestInspectAnonKey_DefaultKeyIsAnon(t *testing.T) {
	claims, err := inspectAnonKey(config.DefaultSupabaseAnonKey, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "anon", claims.Role)
	require.Equal(t, "ngsjmmfnmgiahmqavkza", claims.Ref)
}

func TestInspectAnonKey_RejectsServiceRole(t *testing.T) {
	_, err := inspectAnonKey(signKey(t, "service_role", time.Now().Add(time.Hour)), zap.NewNop())
	require.ErrorIs(t, err, ErrServiceRoleKey)
	require.ErrorIs(t, err, ErrInvalidClientConfig)
}

func TestInspectAnonKey_ExpiredStillAccepted(t *testing.T) {
	claims, err := inspectAnonKey(signKey(t, "anon", time.Now().Add(-time.Hour)), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "anon", claims.Role)
}

func TestInspectAnonKey_Invalid(t *testing.T) {
	_, err := inspectAnonKey("", zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidClientConfig)

	_, err = inspectAnonKey("abc.def", zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidClientConfig)
}
