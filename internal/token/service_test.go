package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Access:  Profile{Secret: "access-secret", TTL: 15 * time.Minute},
		Refresh: Profile{Secret: "refresh-secret", TTL: 720 * time.Hour},
		Scoped:  Profile{Secret: "scoped-secret", TTL: time.Hour},
	}
}

func testIdentity() Identity {
	return Identity{
		PrincipalID: uuid.New(),
		RoleName:    "Manager",
		Email:       "manager@vantage.local",
		DisplayName: "Morgan Manager",
		Username:    "morgan",
		Gender:      "other",
		Location:    "Berlin",
		PhoneNumber: "+49 30 1234567",
		AvatarURL:   "https://cdn.vantage.local/avatars/morgan.png",
	}
}

func TestNewServiceRejectsMissingSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Refresh.Secret = ""
	_, err := NewService(cfg, nil)
	require.Error(t, err)
}

func TestRefreshRoundTrip(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	identity := testIdentity()
	raw, err := svc.IssueRefreshToken(identity)
	require.NoError(t, err)

	claims, err := svc.VerifyRefreshToken(raw)
	require.NoError(t, err)
	assert.Equal(t, identity, claims.Identity)
	assert.Equal(t, KindRefresh, claims.Kind)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	raw, err := svc.IssueAccessToken(testIdentity())
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.VerifyAccessToken(tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	issued := time.Now()
	svc.now = func() time.Time { return issued }
	raw, err := svc.IssueAccessToken(testIdentity())
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(16 * time.Minute) }
	_, err = svc.VerifyAccessToken(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	access, err := svc.IssueAccessToken(testIdentity())
	require.NoError(t, err)

	_, err = svc.VerifyRefreshToken(access)
	require.Error(t, err)

	_, err = svc.VerifyScopedToken(access)
	require.Error(t, err)
}

func TestAccessTokenCarriesNoPermissions(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	identity := testIdentity()
	identity.Permissions = []string{"post:read", "file_manager:read"}
	raw, err := svc.IssueAccessToken(identity)
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Permissions)
}

func TestDeriveScopedTokenFiltersByPrefix(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	identity := testIdentity()
	identity.Permissions = []string{
		"file_manager:read",
		"file_manager:create",
		"post:read",
		"role:delete",
	}

	raw, err := svc.DeriveScopedToken(identity, "file_manager:")
	require.NoError(t, err)

	claims, err := svc.VerifyScopedToken(raw)
	require.NoError(t, err)
	assert.Equal(t, KindScoped, claims.Kind)
	assert.ElementsMatch(t, []string{"file_manager:read", "file_manager:create"}, claims.Permissions)
}

func TestDeriveScopedTokenEmptyWhenNothingMatches(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	identity := testIdentity()
	identity.Permissions = []string{"post:read", "tag:read"}

	raw, err := svc.DeriveScopedToken(identity, "file_manager:")
	require.NoError(t, err)

	claims, err := svc.VerifyScopedToken(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Permissions)
}

type stubPrincipalSource struct {
	identity Identity
	err      error
	lookups  int
}

func (s *stubPrincipalSource) Lookup(ctx context.Context, id uuid.UUID) (Identity, error) {
	s.lookups++
	if s.err != nil {
		return Identity{}, s.err
	}
	return s.identity, nil
}

func TestRefreshSessionReResolvesRole(t *testing.T) {
	source := &stubPrincipalSource{identity: testIdentity()}
	svc, err := NewService(testConfig(), source)
	require.NoError(t, err)

	refresh, err := svc.IssueRefreshToken(source.identity)
	require.NoError(t, err)

	// The role changes between issuance and refresh; the fresh pair must
	// carry the current role, not the one baked into the old claims.
	source.identity.RoleName = "User"

	access, newRefresh, err := svc.RefreshSession(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, 1, source.lookups)

	accessClaims, err := svc.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "User", accessClaims.RoleName)

	refreshClaims, err := svc.VerifyRefreshToken(newRefresh)
	require.NoError(t, err)
	assert.Equal(t, "User", refreshClaims.RoleName)
}

func TestIdentifyReturnsPrincipalID(t *testing.T) {
	svc, err := NewService(testConfig(), nil)
	require.NoError(t, err)

	identity := testIdentity()
	raw, err := svc.IssueAccessToken(identity)
	require.NoError(t, err)

	id, err := svc.Identify(raw)
	require.NoError(t, err)
	assert.Equal(t, identity.PrincipalID, id)
}
