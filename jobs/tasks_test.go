package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	sessions map[int64][]string
	dropped  []int64
}

func (s *stubDirectory) SessionIDsForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.sessions[userID], nil
}

func (s *stubDirectory) DropUserSessions(ctx context.Context, userID int64) error {
	s.dropped = append(s.dropped, userID)
	delete(s.sessions, userID)
	return nil
}

type stubStore struct {
	revoked []string
	err     error
}

func (s *stubStore) Revoke(ctx context.Context, sessionID string) error {
	if s.err != nil {
		return s.err
	}
	s.revoked = append(s.revoked, sessionID)
	return nil
}

func revokeTask(t *testing.T, userID int64) *asynq.Task {
	t.Helper()
	task, err := NewSessionRevokeTask(SessionRevokePayload{UserID: userID})
	require.NoError(t, err)
	return task
}

func TestSessionRevokeTask(t *testing.T) {
	directory := &stubDirectory{sessions: map[int64][]string{42: {"sess-a", "sess-b"}}}
	store := &stubStore{}
	revoker := NewSessionRevoker(directory, store, nil)

	err := revoker.HandleTask(context.Background(), revokeTask(t, 42))
	require.NoError(t, err)

	assert.Equal(t, []string{"sess-a", "sess-b"}, store.revoked)
	assert.Equal(t, []int64{42}, directory.dropped)
}

func TestSessionRevokeTaskNoSessions(t *testing.T) {
	directory := &stubDirectory{sessions: map[int64][]string{}}
	store := &stubStore{}
	revoker := NewSessionRevoker(directory, store, nil)

	err := revoker.HandleTask(context.Background(), revokeTask(t, 7))
	require.NoError(t, err)

	assert.Empty(t, store.revoked)
	assert.Equal(t, []int64{7}, directory.dropped)
}

func TestSessionRevokeTaskStoreFailure(t *testing.T) {
	directory := &stubDirectory{sessions: map[int64][]string{42: {"sess-a"}}}
	store := &stubStore{err: errors.New("redis down")}
	revoker := NewSessionRevoker(directory, store, nil)

	err := revoker.HandleTask(context.Background(), revokeTask(t, 42))
	require.Error(t, err)

	// Postgres records stay so a retry can finish the cleanup.
	assert.Empty(t, directory.dropped)
}

func TestSessionRevokeTaskBadPayload(t *testing.T) {
	revoker := NewSessionRevoker(&stubDirectory{}, &stubStore{}, nil)

	err := revoker.HandleTask(context.Background(), asynq.NewTask(TaskTypeSessionRevoke, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionRevokePayloadRoundTrip(t *testing.T) {
	task := revokeTask(t, 99)
	var payload SessionRevokePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(99), payload.UserID)
}
