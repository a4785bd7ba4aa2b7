package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/principals"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
	"github.com/vantage-cms/vantage-cms/internal/token"
)

// AccountSource resolves login accounts from the principal directory.
type AccountSource interface {
	FindByEmail(ctx context.Context, email string) (*principals.Account, error)
	Lookup(ctx context.Context, principalID uuid.UUID) (token.Identity, error)
}

// TokenPair is an access and refresh token minted together.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service wraps authentication business rules: credential checks, token
// pair minting, refresh, and scoped-token derivation.
type Service struct {
	accounts AccountSource
	tokens   *token.Service
	throttle *LoginThrottle
	logger   *slog.Logger
}

// NewService constructs a new Service. throttle may be nil.
func NewService(accounts AccountSource, tokens *token.Service, throttle *LoginThrottle, logger *slog.Logger) *Service {
	return &Service{accounts: accounts, tokens: tokens, throttle: throttle, logger: logger}
}

// Login validates credentials and mints a token pair. Failures are
// indistinguishable to the caller whether the account is missing, inactive,
// or the password wrong.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if err := s.throttle.Check(ctx, email); err != nil {
		return TokenPair{}, err
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		s.noteFailure(ctx, email)
		return TokenPair{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	if !account.IsActive {
		s.noteFailure(ctx, email)
		return TokenPair{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.noteFailure(ctx, email)
		return TokenPair{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	if err := s.throttle.Reset(ctx, email); err != nil && s.logger != nil {
		s.logger.Warn("reset login throttle", slog.Any("error", err))
	}
	return s.mintPair(account.Identity())
}

// Refresh exchanges a refresh token for a fresh pair reflecting the
// principal's current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	access, refresh, err := s.tokens.RefreshSession(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// FileManagerToken derives a least-privilege token for the file-manager
// subsystem from the caller's current permissions, resolved fresh from the
// directory rather than from the caller's bearer token.
func (s *Service) FileManagerToken(ctx context.Context, principalID uuid.UUID) (string, error) {
	identity, err := s.accounts.Lookup(ctx, principalID)
	if err != nil {
		return "", fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	return s.tokens.DeriveScopedToken(identity, rbac.FileManagerNamespace)
}

func (s *Service) mintPair(identity token.Identity) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(identity)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(identity)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) noteFailure(ctx context.Context, email string) {
	if err := s.throttle.RecordFailure(ctx, email); err != nil && s.logger != nil {
		s.logger.Warn("record login failure", slog.Any("error", err))
	}
}
