package pos

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"pos_data_layer/internal/backend"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bcryptPrefix = "$2"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

// Login looks the user up by username and checks the password. Stored
// bcrypt hashes are verified as such; anything else is compared as
// plaintext, which is logged.
func (s *Service) Login(ctx context.Context, username, password string) Result[UserInfo] {
	return run(ctx, s, "login", func(ctx context.Context, client backend.Backend) (UserInfo, error) {
		var user User
		q := backend.From(TableUsers).Eq("username", username).Single()
		if err := client.Select(ctx, q, &user); err != nil {
			s.logger.Debug("user lookup failed", zap.String("username", username), zap.Error(err))
			return UserInfo{}, ErrUserNotFound
		}

		if !s.checkPassword(user, password) {
			return UserInfo{}, ErrInvalidPassword
		}

		return UserInfo{ID: user.ID, Username: user.Username, Role: user.Role}, nil
	})
}

func (s *Service) checkPassword(user User, password string) bool {
	if strings.HasPrefix(user.Password, bcryptPrefix) {
		return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
	}

	s.logger.Warn("plaintext password stored for user", zap.String("username", user.Username))
	return subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
}

// CreateUser inserts one user and returns the inserted rows without their
// password column.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) Result[[]User] {
	return run(ctx, s, "create user", func(ctx context.Context, client backend.Backend) ([]User, error) {
		stored := password
		if s.hashPasswords {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			stored = string(hash)
		}

		var users []User
		row := User{Username: username, Password: stored, Role: role}
		if err := client.Insert(ctx, TableUsers, []User{row}, &users); err != nil {
			return nil, err
		}
		for i := range users {
			users[i].Password = ""
		}
		return users, nil
	})
}
