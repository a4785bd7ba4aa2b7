// Package principals is the read-mostly boundary to the principal
// directory. This core resolves authorization snapshots and identity claims
// through the role foreign key; profile ownership stays with the directory.
package principals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
	"github.com/vantage-cms/vantage-cms/internal/token"
)

// Account is the login-time projection of a principal record. Role is
// always resolved here because every account query joins the roles table.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	Username     string
	Gender       string
	Location     string
	PhoneNumber  string
	AvatarURL    string
	Role         rbac.RoleRef
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity converts the account into token claims material. An unresolved
// role reference yields claims without role data.
func (a *Account) Identity() token.Identity {
	identity := token.Identity{
		PrincipalID: a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Username:    a.Username,
		Gender:      a.Gender,
		Location:    a.Location,
		PhoneNumber: a.PhoneNumber,
		AvatarURL:   a.AvatarURL,
	}
	if role, ok := a.Role.Role(); ok {
		identity.RoleName = role.Name
		identity.Permissions = role.Permissions
	}
	return identity
}

// Repository provides PostgreSQL backed lookups against the principal
// directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `p.id, p.email, p.password_hash, p.display_name, p.username,
	p.gender, p.location, p.phone_number, p.avatar_url,
	r.id, r.name, r.permissions, p.is_admin, p.is_active, p.created_at, p.updated_at`

// ResolveSnapshot loads the live authorization snapshot for a principal.
// The result reflects the current role record, so role or permission
// changes take effect on the very next request.
func (r *Repository) ResolveSnapshot(ctx context.Context, principalID uuid.UUID) (rbac.Principal, error) {
	var principal rbac.Principal
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, r.name, r.permissions, p.is_admin
		 FROM principals p
		 JOIN roles r ON r.id = p.role_id
		 WHERE p.id = $1`, principalID).
		Scan(&principal.ID, &principal.RoleName, &principal.Permissions, &principal.IsAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, fmt.Errorf("principals: %s: %w", principalID, httpx.ErrNotFound)
		}
		return rbac.Principal{}, err
	}
	return principal, nil
}

// Lookup resolves the current identity claims for a principal. Satisfies
// the token service's principal source contract.
func (r *Repository) Lookup(ctx context.Context, principalID uuid.UUID) (token.Identity, error) {
	account, err := r.getAccount(ctx, `WHERE p.id = $1`, principalID)
	if err != nil {
		return token.Identity{}, err
	}
	return account.Identity(), nil
}

// FindByEmail loads the account used by the login flow.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := r.getAccount(ctx, `WHERE lower(p.email) = lower($1)`, email)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *Repository) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
	var account Account
	var role rbac.Role
	err := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		 FROM principals p
		 JOIN roles r ON r.id = p.role_id `+where, arg).
		Scan(&account.ID, &account.Email, &account.PasswordHash, &account.DisplayName,
			&account.Username, &account.Gender, &account.Location, &account.PhoneNumber,
			&account.AvatarURL, &role.ID, &role.Name, &role.Permissions,
			&account.IsAdmin, &account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("principals: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	account.Role = rbac.ResolvedRole(role)
	return &account, nil
}

// CountDanglingRoleRefs reports principals whose role reference resolves to
// no existing role.
func (r *Repository) CountDanglingRoleRefs(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM principals p
		 WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = p.role_id)`).Scan(&count)
	return count, err
}

// RepairDanglingRoleRefs moves principals with a dangling role reference
// onto the fallback role. Idempotent.
func (r *Repository) RepairDanglingRoleRefs(ctx context.Context, fallback uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals p SET role_id = $1, updated_at = now()
		 WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = p.role_id)`, fallback)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
