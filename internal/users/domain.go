package users

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steward-admin/steward-admin/internal/presence"
)

// User account statuses. Transitions are admin-triggered only.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// User represents a stored user account. PasswordHash never leaves the
// package.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Status       string
	LastSeenAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListedUser is a user enriched with presence fields for the user list.
// The presence fields are derived per request, never stored.
type ListedUser struct {
	ID               int64
	Name             string
	Email            string
	Status           string
	IsOnline         bool
	OnlineStatus     string
	LastSeenAt       *time.Time
	LastSeenText     string
	LastSeenDetailed presence.Detail
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile is the restricted projection served on the show and edit pages:
// no password, no derived presence fields.
type Profile struct {
	ID         int64
	Name       string
	Email      string
	Status     string
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateUserRequest carries the admin create form.
type CreateUserRequest struct {
	Name                 string `validate:"required,max=255"`
	Email                string `validate:"required,email,max=255"`
	Password             string `validate:"required,min=8"`
	PasswordConfirmation string
}

// UpdateUserRequest carries the admin edit form. An empty Password leaves
// the stored hash untouched.
type UpdateUserRequest struct {
	Name                 string `validate:"required,max=255"`
	Email                string `validate:"required,email,max=255"`
	Password             string `validate:"omitempty,min=8"`
	PasswordConfirmation string
}

// ValidationError carries field-level messages for a rejected form.
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
	return "users: validation failed (" + strings.Join(parts, "; ") + ")"
}
