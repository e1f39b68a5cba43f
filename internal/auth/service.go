package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserExists         = errors.New("auth: username already taken")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrInvalidInput       = errors.New("auth: username and password required")
)

const (
	minPasswordLen = 6
	maxUsernameLen = 64
)

type Service struct {
	users  UserStore
	secret string
	ttl    time.Duration
}

func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, secret: secret, ttl: ttl}
}

func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || len(username) > maxUsernameLen {
		return nil, ErrInvalidInput
	}
	if len(password) < minPasswordLen {
		return nil, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *Claims, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidInput
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	return SignJWT(u.ID, u.Username, s.secret, s.ttl)
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	return ParseJWT(token, s.secret)
}
