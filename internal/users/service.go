package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/steward-admin/steward-admin/internal/presence"
	"github.com/steward-admin/steward-admin/internal/shared"
)

// SessionRevoker kicks the live sessions of a user. Implementations are
// best-effort; the status update never depends on them.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID int64) error
}

// Service handles user management business logic.
type Service struct {
	repo     RepositoryPort
	presence presence.Config
	revoker  SessionRevoker
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, presenceCfg presence.Config, revoker SessionRevoker, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		presence: presenceCfg,
		revoker:  revoker,
		audit:    audit,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// List returns all users with presence fields derived against the current
// clock.
func (s *Service) List(ctx context.Context) ([]ListedUser, error) {
	stored, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	listed := make([]ListedUser, len(stored))
	for i, user := range stored {
		listed[i] = ListedUser{
			ID:               user.ID,
			Name:             user.Name,
			Email:            user.Email,
			Status:           user.Status,
			IsOnline:         presence.IsOnline(s.presence, user.LastSeenAt, now),
			OnlineStatus:     presence.Status(s.presence, user.LastSeenAt, now),
			LastSeenAt:       user.LastSeenAt,
			LastSeenText:     presence.LastSeenText(s.presence, user.LastSeenAt, now),
			LastSeenDetailed: presence.LastSeenDetailed(s.presence, user.LastSeenAt, now),
			CreatedAt:        user.CreatedAt,
			UpdatedAt:        user.UpdatedAt,
		}
	}
	return listed, nil
}

// Get returns the restricted projection for the show/edit pages.
func (s *Service) Get(ctx context.Context, id int64) (*Profile, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Status:     user.Status,
		LastSeenAt: user.LastSeenAt,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}, nil
}

// Create validates the request and stores a new user. The password is
// stored only as a bcrypt hash.
func (s *Service) Create(ctx context.Context, req CreateUserRequest, actorID int64) (*User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	fields := s.structErrors(req)
	if req.Password != "" && req.Password != req.PasswordConfirmation {
		fields["password"] = "password confirmation does not match"
	}
	if _, ok := fields["email"]; !ok {
		taken, err := s.repo.EmailExists(ctx, req.Email, 0)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if taken {
			fields["email"] = "email has already been taken"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, req.Name, req.Email, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.recordAudit(ctx, actorID, "user.create", user.ID, map[string]any{"email": user.Email})
	return user, nil
}

// Update validates the request and applies it. An empty password leaves the
// stored hash untouched; a non-empty one is re-validated and re-hashed.
func (s *Service) Update(ctx context.Context, id int64, req UpdateUserRequest, actorID int64) error {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	fields := s.structErrors(req)
	if req.Password != "" && req.Password != req.PasswordConfirmation {
		fields["password"] = "password confirmation does not match"
	}
	if _, ok := fields["email"]; !ok {
		taken, err := s.repo.EmailExists(ctx, req.Email, id)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			fields["email"] = "email has already been taken"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	var hash *string
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		value := string(hashed)
		hash = &value
	}
	if err := s.repo.UpdateUser(ctx, id, req.Name, req.Email, hash); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	s.recordAudit(ctx, actorID, "user.update", id, map[string]any{"email": req.Email, "password_changed": hash != nil})
	return nil
}

// UpdateStatus blocks or unblocks a user. Blocking yourself is Forbidden.
// The active-to-blocked transition triggers a best-effort session
// revocation; every other transition has no side effect.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string, actorID int64) error {
	if status != StatusActive && status != StatusBlocked {
		return &ValidationError{Fields: map[string]string{"status": "status must be active or blocked"}}
	}
	if id == actorID {
		return fmt.Errorf("%w: you cannot block your own account", shared.ErrForbidden)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	oldStatus := user.Status
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if status == StatusBlocked && oldStatus == StatusActive {
		s.invalidateUserSessions(ctx, user)
	}
	s.recordAudit(ctx, actorID, "user.status", id, map[string]any{"from": oldStatus, "to": status})
	return nil
}

// Delete hard-deletes a user. Deleting yourself is Forbidden.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) (*User, error) {
	if id == actorID {
		return nil, fmt.Errorf("%w: you cannot delete your own account", shared.ErrForbidden)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	s.recordAudit(ctx, actorID, "user.delete", id, map[string]any{"email": user.Email})
	return user, nil
}

// invalidateUserSessions is fire-and-forget: failures are logged and never
// fail the status update.
func (s *Service) invalidateUserSessions(ctx context.Context, user *User) {
	if s.logger != nil {
		s.logger.Info("user blocked, invalidating sessions",
			slog.Int64("user_id", user.ID), slog.String("email", user.Email))
	}
	if s.revoker == nil {
		return
	}
	if err := s.revoker.RevokeUserSessions(ctx, user.ID); err != nil && s.logger != nil {
		s.logger.Warn("revoke user sessions", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
}

func (s *Service) structErrors(req any) map[string]string {
	fields := make(map[string]string)
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				switch fe.Field() {
				case "Name":
					fields["name"] = "name is required and must not exceed 255 characters"
				case "Email":
					fields["email"] = "a valid email of at most 255 characters is required"
				case "Password":
					fields["password"] = "password must be at least 8 characters"
				}
			}
		}
	}
	return fields
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit user action", slog.String("action", action), slog.Any("error", err))
	}
}
