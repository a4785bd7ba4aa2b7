package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (rbac.Role, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]rbac.Role, error)
	GetByNames(ctx context.Context, names []string) ([]rbac.Role, error)
	Create(ctx context.Context, params CreateRoleParams) (rbac.Role, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateRoleParams) (rbac.Role, error)
	CountNonDeletable(ctx context.Context) (int, error)
	DeleteNonDeletable(ctx context.Context) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepositoryPort) error) error
}

// Service is the role lifecycle manager: seeding, CRUD, and deletion with
// principal reassignment.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger

	mu  sync.RWMutex
	dir *Directory
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Directory returns the canonical role directory built by Seed.
func (s *Service) Directory() *Directory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// Seed guarantees that exactly the three canonical non-deletable roles
// exist. A store holding any other number of non-deletable roles is
// destructively repaired: all of them are dropped and the canonical set is
// recreated. A consistent store is left untouched. Either way the name to
// id directory is rebuilt and returned.
func (s *Service) Seed(ctx context.Context) (*Directory, error) {
	count, err := s.repo.CountNonDeletable(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: count seed set: %w", err)
	}

	if count != DefaultRoleCount {
		removed, err := s.repo.DeleteNonDeletable(ctx)
		if err != nil {
			return nil, fmt.Errorf("roles: clear seed set: %w", err)
		}
		if s.logger != nil {
			s.logger.Info("repairing default roles",
				slog.Int("found", count),
				slog.Int64("removed", removed))
		}
		for _, def := range defaultRoles() {
			if _, err := s.repo.Create(ctx, CreateRoleParams{
				Name:        def.Name,
				Permissions: def.Permissions,
				Color:       def.Color,
				Deletable:   false,
			}); err != nil {
				return nil, fmt.Errorf("roles: seed %s: %w", def.Name, err)
			}
		}
	}

	seeded, err := s.repo.GetByNames(ctx, DefaultRoleNames())
	if err != nil {
		return nil, fmt.Errorf("roles: load seed set: %w", err)
	}
	ids := make(map[string]uuid.UUID, len(seeded))
	for _, role := range seeded {
		if !role.Deletable {
			ids[role.Name] = role.ID
		}
	}
	for _, name := range DefaultRoleNames() {
		if _, ok := ids[name]; !ok {
			return nil, fmt.Errorf("roles: seed left no %s role", name)
		}
	}

	dir := NewDirectory(ids)
	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()
	return dir, nil
}

// Reseed rebuilds the canonical roles and the directory on demand.
func (s *Service) Reseed(ctx context.Context) (*Directory, error) {
	return s.Seed(ctx)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a single role.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	return s.repo.GetByID(ctx, id)
}

// Resolve materializes a role reference. References already carrying their
// record pass through without a store read.
func (s *Service) Resolve(ctx context.Context, ref rbac.RoleRef) (rbac.RoleRef, error) {
	if _, ok := ref.Role(); ok {
		return ref, nil
	}
	role, err := s.Get(ctx, ref.ID())
	if err != nil {
		return rbac.RoleRef{}, err
	}
	return rbac.ResolvedRole(role), nil
}

// GetByIDs is a batch lookup for collaborators resolving role references.
func (s *Service) GetByIDs(ctx context.Context, rawIDs []string) ([]rbac.Role, error) {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByIDs(ctx, ids)
}

// Create inserts an admin-defined role. Such roles are always deletable.
func (s *Service) Create(ctx context.Context, name string, permissions []string, color string) (rbac.Role, error) {
	if name == "" {
		return rbac.Role{}, fmt.Errorf("roles: name required: %w", httpx.ErrValidation)
	}
	if permissions == nil {
		permissions = []string{}
	}
	return s.repo.Create(ctx, CreateRoleParams{
		Name:        name,
		Permissions: permissions,
		Color:       color,
		Deletable:   true,
	})
}

// Update applies a partial update. The stored row ends up deletable
// regardless of its prior value.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateRoleParams) (rbac.Role, error) {
	return s.repo.Update(ctx, id, params)
}

// Delete removes a single role after reassigning every principal that
// references it to the User role. Reassignment and deletion run in one
// transaction; if reassignment fails the role stays in place.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	fallback, err := s.fallbackRoleID()
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepositoryPort) error {
		role, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !role.Deletable {
			return fmt.Errorf("roles: %s is protected: %w", role.Name, httpx.ErrForbidden)
		}
		reassigned, err := tx.ReassignPrincipals(ctx, []uuid.UUID{id}, fallback, false)
		if err != nil {
			return fmt.Errorf("roles: reassign principals: %w", err)
		}
		removed, err := tx.DeleteRole(ctx, id)
		if err != nil {
			return fmt.Errorf("roles: delete %s: %w", id, err)
		}
		if removed == 0 {
			return fmt.Errorf("roles: %s: %w", id, httpx.ErrNotFound)
		}
		if s.logger != nil {
			s.logger.Info("role deleted",
				slog.String("role", role.Name),
				slog.Int64("principals_reassigned", reassigned))
		}
		return nil
	})
}

// DeleteMany removes the deletable subset of the given roles. All ids must
// be well formed or the whole call fails. Principals referencing any listed
// role are reassigned to the User role, except principals flagged is_admin.
// Non-deletable roles in the set are skipped without error.
func (s *Service) DeleteMany(ctx context.Context, rawIDs []string) ([]uuid.UUID, error) {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("roles: empty id list: %w", httpx.ErrValidation)
	}
	fallback, err := s.fallbackRoleID()
	if err != nil {
		return nil, err
	}
	var deleted []uuid.UUID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepositoryPort) error {
		reassigned, err := tx.ReassignPrincipals(ctx, ids, fallback, true)
		if err != nil {
			return fmt.Errorf("roles: reassign principals: %w", err)
		}
		deleted, err = tx.DeleteDeletableIn(ctx, ids)
		if err != nil {
			return fmt.Errorf("roles: bulk delete: %w", err)
		}
		if s.logger != nil {
			s.logger.Info("roles bulk deleted",
				slog.Int("requested", len(ids)),
				slog.Int("deleted", len(deleted)),
				slog.Int64("principals_reassigned", reassigned))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Service) fallbackRoleID() (uuid.UUID, error) {
	dir := s.Directory()
	if dir == nil {
		return uuid.Nil, fmt.Errorf("roles: directory not seeded")
	}
	return dir.UserRoleID()
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("roles: malformed id %q: %w", value, httpx.ErrValidation)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
