package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoleRefStates(t *testing.T) {
	id := uuid.New()

	unresolved := UnresolvedRole(id)
	assert.Equal(t, id, unresolved.ID())
	_, ok := unresolved.Role()
	assert.False(t, ok)

	record := Role{ID: id, Name: "Editor", Permissions: []string{"post:read"}}
	resolved := ResolvedRole(record)
	assert.Equal(t, id, resolved.ID())
	got, ok := resolved.Role()
	assert.True(t, ok)
	assert.Equal(t, record, got)
}
