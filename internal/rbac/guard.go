package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
)

// TokenVerifier validates a bearer token and returns the principal id it
// carries.
type TokenVerifier interface {
	Identify(raw string) (uuid.UUID, error)
}

// SnapshotSource resolves the live principal snapshot from the role store.
type SnapshotSource interface {
	ResolveSnapshot(ctx context.Context, principalID uuid.UUID) (Principal, error)
}

// DecisionObserver records authorization outcomes, typically for metrics.
type DecisionObserver interface {
	ObserveAuthz(outcome string)
}

// Guard orchestrates an authorization decision: verify the token, resolve
// the principal snapshot, evaluate the policy. Claims embedded in the token
// are never trusted for role or permission data.
type Guard struct {
	tokens     TokenVerifier
	principals SnapshotSource
	logger     *slog.Logger
	observer   DecisionObserver
}

// NewGuard constructs a Guard. The observer may be nil.
func NewGuard(tokens TokenVerifier, principals SnapshotSource, logger *slog.Logger, observer DecisionObserver) *Guard {
	return &Guard{tokens: tokens, principals: principals, logger: logger, observer: observer}
}

// Authorize applies the policy to the bearer token and returns the resolved
// principal on allow. Denials wrap httpx.ErrUnauthorized or
// httpx.ErrForbidden.
func (g *Guard) Authorize(ctx context.Context, policy AuthorizationPolicy, bearer string) (Principal, error) {
	principalID, err := g.tokens.Identify(bearer)
	if err != nil {
		g.observe("unauthorized")
		return Principal{}, fmt.Errorf("rbac: token rejected: %w", httpx.ErrUnauthorized)
	}
	principal, err := g.principals.ResolveSnapshot(ctx, principalID)
	if err != nil {
		g.observe("unauthorized")
		return Principal{}, fmt.Errorf("rbac: principal %s unresolved: %w", principalID, httpx.ErrUnauthorized)
	}
	if err := Evaluate(principal, policy); err != nil {
		g.observe("forbidden")
		return Principal{}, err
	}
	g.observe("allowed")
	return principal, nil
}

func (g *Guard) observe(outcome string) {
	if g.observer != nil {
		g.observer.ObserveAuthz(outcome)
	}
}
