package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-cms/vantage-cms/internal/platform/db"
	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
)

const roleColumns = "id, name, permissions, deletable, color, created_at, updated_at"

// Repository provides PostgreSQL backed persistence for roles. It also
// carries the principal reassignment issued on role deletion, which is the
// only write this core performs against the principal directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type execer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]rbac.Role, error) {
	return scanRoles(ctx, r.pool, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
}

// GetByID fetches a role by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, fmt.Errorf("roles: %s: %w", id, httpx.ErrNotFound)
		}
		return rbac.Role{}, err
	}
	return role, nil
}

// GetByIDs returns the roles matching the given ids.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]rbac.Role, error) {
	return scanRoles(ctx, r.pool,
		`SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY name`, ids)
}

// GetByNames returns the roles matching the given names.
func (r *Repository) GetByNames(ctx context.Context, names []string) ([]rbac.Role, error) {
	return scanRoles(ctx, r.pool,
		`SELECT `+roleColumns+` FROM roles WHERE name = ANY($1) ORDER BY name`, names)
}

// CreateRoleParams carries the fields for role creation.
type CreateRoleParams struct {
	Name        string
	Permissions []string
	Color       string
	Deletable   bool
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, params CreateRoleParams) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`INSERT INTO roles (id, name, permissions, deletable, color, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+roleColumns,
		uuid.New(), params.Name, params.Permissions, params.Deletable, params.Color))
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.Role{}, fmt.Errorf("roles: name %q taken: %w", params.Name, httpx.ErrDuplicate)
		}
		return rbac.Role{}, err
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UpdateRoleParams carries the partial update. Nil fields keep the stored
// value. The update always forces deletable to true on the stored row.
type UpdateRoleParams struct {
	Name        *string
	Permissions []string
	Color       *string
}

// Update applies a partial update to a role.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateRoleParams) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles SET
			name = COALESCE($2, name),
			permissions = COALESCE($3, permissions),
			color = COALESCE($4, color),
			deletable = TRUE,
			updated_at = now()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		id, params.Name, params.Permissions, params.Color))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, fmt.Errorf("roles: %s: %w", id, httpx.ErrNotFound)
		}
		return rbac.Role{}, err
	}
	return role, nil
}

// CountNonDeletable counts roles with deletable = false.
func (r *Repository) CountNonDeletable(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM roles WHERE deletable = FALSE`).Scan(&count)
	return count, err
}

// DeleteNonDeletable removes every role with deletable = false. Used only
// by the seeding repair path.
func (r *Repository) DeleteNonDeletable(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE deletable = FALSE`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithTx runs fn against a transaction-scoped repository.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// TxRepositoryPort groups the statements composing a delete-with-reassign.
type TxRepositoryPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (rbac.Role, error)
	ReassignPrincipals(ctx context.Context, roleIDs []uuid.UUID, fallback uuid.UUID, excludeAdmins bool) (int64, error)
	DeleteRole(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteDeletableIn(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetByID(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	role, err := scanRole(t.tx.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, fmt.Errorf("roles: %s: %w", id, httpx.ErrNotFound)
		}
		return rbac.Role{}, err
	}
	return role, nil
}

// ReassignPrincipals moves every principal referencing one of roleIDs onto
// the fallback role. Reassignment is idempotent and safe to retry.
func (t *txRepository) ReassignPrincipals(ctx context.Context, roleIDs []uuid.UUID, fallback uuid.UUID, excludeAdmins bool) (int64, error) {
	query := `UPDATE principals SET role_id = $1, updated_at = now() WHERE role_id = ANY($2)`
	if excludeAdmins {
		query += ` AND is_admin = FALSE`
	}
	tag, err := t.tx.Exec(ctx, query, fallback, roleIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) DeleteRole(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteDeletableIn removes the deletable subset of ids and reports which
// roles were actually removed. Non-deletable ids are left untouched.
func (t *txRepository) DeleteDeletableIn(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx,
		`DELETE FROM roles WHERE id = ANY($1) AND deletable = TRUE RETURNING id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deleted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func scanRoles(ctx context.Context, q execer, query string, args ...any) ([]rbac.Role, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Permissions, &role.Deletable, &role.Color, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row pgx.Row) (rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.Name, &role.Permissions, &role.Deletable, &role.Color, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}
