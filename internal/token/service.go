// Package token signs and verifies the bearer tokens carrying identity
// between this system and its collaborators. Tokens are never persisted;
// validity is purely a function of signature and expiry.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates the three token profiles.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindScoped  Kind = "scoped"
)

// ErrInvalidToken covers signature, expiry, and kind mismatches.
var ErrInvalidToken = errors.New("token: invalid")

// Identity is the claim payload shared by every token kind. Permissions is
// populated only on scoped tokens.
type Identity struct {
	PrincipalID uuid.UUID `json:"principalId"`
	RoleName    string    `json:"roleName"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Username    string    `json:"username,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	Location    string    `json:"location,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// Claims is the wire payload: identity plus kind and timestamps.
type Claims struct {
	Identity
	Kind Kind `json:"tokenKind"`
	jwt.RegisteredClaims
}

// Profile configures one token kind.
type Profile struct {
	Secret string
	TTL    time.Duration
}

// Config holds the three independent secret and expiry profiles.
type Config struct {
	Access  Profile
	Refresh Profile
	Scoped  Profile
}

// PrincipalSource supplies the live identity of a principal from the role
// store. Refresh never trusts the role or permissions baked into old claims.
type PrincipalSource interface {
	Lookup(ctx context.Context, principalID uuid.UUID) (Identity, error)
}

// Service performs stateless signing and verification.
type Service struct {
	cfg        Config
	principals PrincipalSource
	now        func() time.Time
}

// NewService constructs a Service. principals may be nil when the refresh
// flow is not needed (e.g. a verification-only consumer).
func NewService(cfg Config, principals PrincipalSource) (*Service, error) {
	for kind, profile := range map[Kind]Profile{
		KindAccess:  cfg.Access,
		KindRefresh: cfg.Refresh,
		KindScoped:  cfg.Scoped,
	} {
		if profile.Secret == "" {
			return nil, fmt.Errorf("token: %s secret required", kind)
		}
		if profile.TTL <= 0 {
			return nil, fmt.Errorf("token: %s ttl required", kind)
		}
	}
	return &Service{cfg: cfg, principals: principals, now: time.Now}, nil
}

// IssueAccessToken signs a short-lived access token.
func (s *Service) IssueAccessToken(identity Identity) (string, error) {
	return s.issue(KindAccess, identity)
}

// IssueRefreshToken signs a long-lived refresh token.
func (s *Service) IssueRefreshToken(identity Identity) (string, error) {
	return s.issue(KindRefresh, identity)
}

// VerifyAccessToken checks signature, expiry, and kind.
func (s *Service) VerifyAccessToken(raw string) (Claims, error) {
	return s.verify(KindAccess, raw)
}

// VerifyRefreshToken checks signature, expiry, and kind.
func (s *Service) VerifyRefreshToken(raw string) (Claims, error) {
	return s.verify(KindRefresh, raw)
}

// VerifyScopedToken checks signature, expiry, and kind.
func (s *Service) VerifyScopedToken(raw string) (Claims, error) {
	return s.verify(KindScoped, raw)
}

// Identify validates an access token and returns the principal id it
// carries. Satisfies the guard's verifier contract.
func (s *Service) Identify(raw string) (uuid.UUID, error) {
	claims, err := s.VerifyAccessToken(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.PrincipalID, nil
}

// RefreshSession verifies a refresh token, re-resolves the principal's
// current identity from the store, and mints a fresh token pair.
// Credentials are never re-checked here.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := s.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", "", err
	}
	if s.principals == nil {
		return "", "", errors.New("token: principal source not configured")
	}
	identity, err := s.principals.Lookup(ctx, claims.PrincipalID)
	if err != nil {
		return "", "", fmt.Errorf("token: refresh lookup: %w", err)
	}
	access, err = s.IssueAccessToken(identity)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.IssueRefreshToken(identity)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// DeriveScopedToken filters the identity's permissions down to the given
// namespace prefix and signs the result with the scoped profile. The
// receiving subsystem never observes permissions outside its namespace.
func (s *Service) DeriveScopedToken(identity Identity, namespacePrefix string) (string, error) {
	scoped := make([]string, 0, len(identity.Permissions))
	for _, perm := range identity.Permissions {
		if strings.HasPrefix(perm, namespacePrefix) {
			scoped = append(scoped, perm)
		}
	}
	identity.Permissions = scoped
	return s.issue(KindScoped, identity)
}

func (s *Service) issue(kind Kind, identity Identity) (string, error) {
	profile := s.profile(kind)
	if kind != KindScoped {
		// Permissions travel only in scoped tokens; access and refresh
		// tokens carry identity and the authorization is re-resolved on
		// every request.
		identity.Permissions = nil
	}
	now := s.now()
	claims := Claims{
		Identity: identity,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(profile.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(profile.Secret))
	if err != nil {
		return "", fmt.Errorf("token: sign %s: %w", kind, err)
	}
	return signed, nil
}

func (s *Service) verify(kind Kind, raw string) (Claims, error) {
	profile := s.profile(kind)
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			return []byte(profile.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return Claims{}, fmt.Errorf("%w: kind %q where %q expected", ErrInvalidToken, claims.Kind, kind)
	}
	return claims, nil
}

func (s *Service) profile(kind Kind) Profile {
	switch kind {
	case KindRefresh:
		return s.cfg.Refresh
	case KindScoped:
		return s.cfg.Scoped
	default:
		return s.cfg.Access
	}
}
