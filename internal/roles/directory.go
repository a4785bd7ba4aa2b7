package roles

import (
	"fmt"

	"github.com/google/uuid"
)

// Directory maps canonical role names to their ids. It is produced once by
// seeding and handed to consumers by reference; Reseed on the service is the
// only way to refresh it.
type Directory struct {
	ids map[string]uuid.UUID
}

// NewDirectory builds a directory from a name to id map.
func NewDirectory(ids map[string]uuid.UUID) *Directory {
	copied := make(map[string]uuid.UUID, len(ids))
	for name, id := range ids {
		copied[name] = id
	}
	return &Directory{ids: copied}
}

// ID returns the id for a canonical role name.
func (d *Directory) ID(name string) (uuid.UUID, bool) {
	id, ok := d.ids[name]
	return id, ok
}

// UserRoleID returns the id of the fallback User role.
func (d *Directory) UserRoleID() (uuid.UUID, error) {
	id, ok := d.ids[RoleUser]
	if !ok {
		return uuid.Nil, fmt.Errorf("roles: directory missing %s role", RoleUser)
	}
	return id, nil
}

// Names returns the known canonical names.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.ids))
	for name := range d.ids {
		names = append(names, name)
	}
	return names
}
