package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/steward-admin/steward-admin/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. A blocked account is
// indistinguishable from a wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.Status == statusBlocked {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// SessionIDsForUser lists the live session ids for a user.
func (s *Service) SessionIDsForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.SessionIDsForUser(ctx, userID)
}

// DropUserSessions removes every session record for a user.
func (s *Service) DropUserSessions(ctx context.Context, userID int64) error {
	return s.repo.DeleteSessionsForUser(ctx, userID)
}

// TouchLastSeen stamps the user's activity time for presence tracking.
func (s *Service) TouchLastSeen(ctx context.Context, userID int64) error {
	return s.repo.TouchLastSeen(ctx, userID)
}
