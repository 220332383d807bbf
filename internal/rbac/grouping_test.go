package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupPermissions(t *testing.T) {
	perms := []Permission{
		{ID: 1, Name: "view roles"},
		{ID: 2, Name: "create roles"},
		{ID: 3, Name: "view users"},
		{ID: 4, Name: "manage users"},
	}

	keys, grouped := GroupPermissions(perms)

	assert.Equal(t, []string{"create", "manage", "view"}, keys)
	assert.Len(t, grouped["view"], 2)
	assert.Equal(t, "create roles", grouped["create"][0].Name)
}

func TestGroupPermissionsEmpty(t *testing.T) {
	keys, grouped := GroupPermissions(nil)
	assert.Empty(t, keys)
	assert.Empty(t, grouped)
}

func TestGroupKeyIgnoresExtraWhitespace(t *testing.T) {
	p := Permission{Name: "  view   roles "}
	assert.Equal(t, "view", p.GroupKey())
}
