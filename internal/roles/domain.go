package roles

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role represents a role together with its granted permission names and the
// number of users currently assigned to it.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
	UserCount   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AssignedUser is the projection of a user shown on the role detail page.
type AssignedUser struct {
	ID    int64
	Name  string
	Email string
}

// RoleDetail is a role plus its assigned users.
type RoleDetail struct {
	Role
	Users []AssignedUser
}

// SaveRoleRequest carries the create/update form payload. The permission set
// replaces the stored one wholesale.
type SaveRoleRequest struct {
	Name        string
	Permissions []string
}

// BulkDeleteResult reports the outcome of a bulk delete. When BlockedRoles is
// non-empty nothing was deleted.
type BulkDeleteResult struct {
	Deleted      []int64
	BlockedRoles []string
}

// ValidationError carries field-level messages for a rejected form. No
// mutation happens when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "roles: validation failed (" + strings.Join(parts, "; ") + ")"
}
