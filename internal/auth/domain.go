package auth

import "time"

const statusBlocked = "blocked"

// User represents an authenticating user account.
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
