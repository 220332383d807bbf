package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSessionRevoke is the task type for revoking a blocked user's
	// sessions.
	TaskTypeSessionRevoke = "session:revoke"
)

// SessionRevokePayload identifies the user whose sessions must be dropped.
type SessionRevokePayload struct {
	UserID int64 `json:"user_id"`
}

// NewSessionRevokeTask constructs an Asynq task.
func NewSessionRevokeTask(payload SessionRevokePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSessionRevoke, data), nil
}

// SessionDirectory finds and clears the postgres-side session records for a
// user. Satisfied by the auth service.
type SessionDirectory interface {
	SessionIDsForUser(ctx context.Context, userID int64) ([]string, error)
	DropUserSessions(ctx context.Context, userID int64) error
}

// SessionStore deletes the live Redis session by id. Satisfied by the
// shared session manager.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string) error
}

// SessionRevoker processes TaskTypeSessionRevoke tasks: it looks up the
// user's registered sessions, drops each from Redis, then clears the
// postgres records.
type SessionRevoker struct {
	directory SessionDirectory
	store     SessionStore
	logger    *slog.Logger
}

// NewSessionRevoker constructs the task handler.
func NewSessionRevoker(directory SessionDirectory, store SessionStore, logger *slog.Logger) *SessionRevoker {
	return &SessionRevoker{directory: directory, store: store, logger: logger}
}

// HandleTask revokes every session of the payload's user. A malformed
// payload is never retried.
func (s *SessionRevoker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload SessionRevokePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	ids, err := s.directory.SessionIDsForUser(ctx, payload.UserID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.store.Revoke(ctx, id); err != nil {
			return err
		}
	}
	if err := s.directory.DropUserSessions(ctx, payload.UserID); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("revoked user sessions",
			slog.Int64("user_id", payload.UserID), slog.Int("count", len(ids)))
	}
	return nil
}
