package rbac

import "time"

// Role represents a named bundle of capabilities.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability such as "delete roles".
type Permission struct {
	ID   int64
	Name string
}

// GroupKey returns the display-grouping key for a permission: the first
// whitespace-delimited token of its name. Presentation only, no
// authorization effect.
func (p Permission) GroupKey() string {
	return firstToken(p.Name)
}
