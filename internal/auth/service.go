package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/store"
)

var (
	// ErrEmptyToken is returned when login is attempted without a token.
	ErrEmptyToken = errors.New("token is empty")
	// ErrTokenExpired is returned for tokens whose exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
)

// UserFetcher loads the account that owns the current token.
type UserFetcher interface {
	CurrentUser(ctx context.Context) (core.User, error)
}

// Service manages the client's credentials.
type Service struct {
	store store.AuthStore
	users UserFetcher
	now   func() time.Time
	log   *zerolog.Logger
}

// NewService creates a new authentication service.
func NewService(st store.AuthStore, users UserFetcher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, users: users, now: time.Now, log: logger}
}

// Login stores token and caches the account it belongs to.
// Expired JWTs are rejected before any network call; opaque tokens are accepted as is.
func (s *Service) Login(ctx context.Context, token string) (core.User, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return core.User{}, ErrEmptyToken
	}

	claims, err := ParseClaims(token)
	switch {
	case err == nil && claims.Expired(s.now()):
		return core.User{}, ErrTokenExpired
	case err != nil && !errors.Is(err, ErrNotJWT):
		return core.User{}, err
	}

	if err := s.store.SetToken(ctx, token); err != nil {
		return core.User{}, fmt.Errorf("store token: %w", err)
	}

	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		// a rejected token must not stay behind
		if clearErr := s.store.ClearAuth(ctx); clearErr != nil {
			s.log.Warn().Err(clearErr).Msg("failed to clear rejected token")
		}
		return core.User{}, fmt.Errorf("fetch current user: %w", err)
	}
	if err := s.store.SetCurrentUser(ctx, user); err != nil {
		return core.User{}, fmt.Errorf("cache current user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("signed in")
	return user, nil
}

// Logout forgets the token and the cached account.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.ClearAuth(ctx)
}

// Token implements core.TokenSource. An expired JWT is cleared and reported as
// core.ErrAuthRequired so no request is sent with it.
func (s *Service) Token(ctx context.Context) (string, error) {
	token, err := s.store.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", core.ErrAuthRequired
	}
	if claims, err := ParseClaims(token); err == nil && claims.Expired(s.now()) {
		s.log.Info().Msg("stored token expired")
		if clearErr := s.store.ClearAuth(ctx); clearErr != nil {
			s.log.Warn().Err(clearErr).Msg("failed to clear expired token")
		}
		return "", core.ErrAuthRequired
	}
	return token, nil
}

// Whoami returns the cached account, fetching and caching it when missing.
func (s *Service) Whoami(ctx context.Context) (core.User, error) {
	if _, err := s.Token(ctx); err != nil {
		return core.User{}, err
	}
	cached, err := s.store.CurrentUser(ctx)
	if err != nil {
		return core.User{}, err
	}
	if cached != nil {
		return *cached, nil
	}
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("fetch current user: %w", err)
	}
	if err := s.store.SetCurrentUser(ctx, user); err != nil {
		return core.User{}, fmt.Errorf("cache current user: %w", err)
	}
	return user, nil
}
