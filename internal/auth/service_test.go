package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/principals"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
	"github.com/vantage-cms/vantage-cms/internal/token"
)

type stubAccounts struct {
	byEmail map[string]*principals.Account
	byID    map[uuid.UUID]*principals.Account
}

func newStubAccounts(accounts ...*principals.Account) *stubAccounts {
	s := &stubAccounts{
		byEmail: make(map[string]*principals.Account),
		byID:    make(map[uuid.UUID]*principals.Account),
	}
	for _, account := range accounts {
		s.byEmail[account.Email] = account
		s.byID[account.ID] = account
	}
	return s
}

func (s *stubAccounts) FindByEmail(ctx context.Context, email string) (*principals.Account, error) {
	account, ok := s.byEmail[email]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return account, nil
}

func (s *stubAccounts) Lookup(ctx context.Context, principalID uuid.UUID) (token.Identity, error) {
	account, ok := s.byID[principalID]
	if !ok {
		return token.Identity{}, httpx.ErrNotFound
	}
	return account.Identity(), nil
}

func testTokenService(t *testing.T, source token.PrincipalSource) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{
		Access:  token.Profile{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh: token.Profile{Secret: "refresh-secret", TTL: 720 * time.Hour},
		Scoped:  token.Profile{Secret: "scoped-secret", TTL: time.Hour},
	}, source)
	require.NoError(t, err)
	return svc
}

func testAccount(t *testing.T, password string) *principals.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &principals.Account{
		ID:           uuid.New(),
		Email:        "editor@vantage.local",
		PasswordHash: string(hash),
		DisplayName:  "Edith Editor",
		Username:     "edith",
		Role: rbac.ResolvedRole(rbac.Role{
			ID:          uuid.New(),
			Name:        "Editor",
			Permissions: []string{"post:read", "file_manager:read", "file_manager:create"},
		}),
		IsActive: true,
	}
}

func testThrottle(t *testing.T, maxAttempts int) *LoginThrottle {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoginThrottle(client, maxAttempts, 15*time.Minute)
}

func TestLoginMintsVerifiablePair(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, testThrottle(t, 10), nil)

	pair, err := svc.Login(context.Background(), account.Email, "swordfish")
	require.NoError(t, err)

	claims, err := tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.PrincipalID)
	assert.Equal(t, "Editor", claims.RoleName)
	assert.Empty(t, claims.Permissions)

	_, err = tokens.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	account := testAccount(t, "swordfish")
	inactive := testAccount(t, "swordfish")
	inactive.Email = "gone@vantage.local"
	inactive.IsActive = false
	accounts := newStubAccounts(account, inactive)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, testThrottle(t, 10), nil)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@vantage.local", "swordfish"},
		{"wrong password", account.Email, "guess"},
		{"inactive account", inactive.Email, "swordfish"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.email, tc.password)
			require.Error(t, err)
			assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
		})
	}
}

func TestLoginThrottleExhaustion(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, testThrottle(t, 3), nil)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), account.Email, "guess")
		require.Error(t, err)
		assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
	}

	// The counter is exhausted; even correct credentials are refused now.
	_, err := svc.Login(context.Background(), account.Email, "swordfish")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrRateLimited))
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, testThrottle(t, 3), nil)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), account.Email, "guess")
		require.Error(t, err)
	}
	_, err := svc.Login(context.Background(), account.Email, "swordfish")
	require.NoError(t, err)

	// The slate is clean again.
	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), account.Email, "guess")
		require.Error(t, err)
		assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
	}
}

func TestRefreshReflectsRoleChange(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, nil, nil)

	pair, err := svc.Login(context.Background(), account.Email, "swordfish")
	require.NoError(t, err)

	account.Role = rbac.ResolvedRole(rbac.Role{Name: "User"})

	fresh, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	claims, err := tokens.VerifyAccessToken(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "User", claims.RoleName)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, nil, nil)

	pair, err := svc.Login(context.Background(), account.Email, "swordfish")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
}

func TestFileManagerTokenScopesPermissions(t *testing.T) {
	account := testAccount(t, "swordfish")
	accounts := newStubAccounts(account)
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, nil, nil)

	scoped, err := svc.FileManagerToken(context.Background(), account.ID)
	require.NoError(t, err)

	claims, err := tokens.VerifyScopedToken(scoped)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"file_manager:read", "file_manager:create"}, claims.Permissions)
}

func TestFileManagerTokenUnknownPrincipal(t *testing.T) {
	accounts := newStubAccounts()
	tokens := testTokenService(t, accounts)
	svc := NewService(accounts, tokens, nil, nil)

	_, err := svc.FileManagerToken(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
}
