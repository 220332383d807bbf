package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/steward-admin/steward-admin/internal/presence"
	"github.com/steward-admin/steward-admin/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users      map[int64]*User
	nextUserID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[int64]*User), nextUserID: 1}
}

func (m *mockRepository) addUser(name, email, status string, lastSeenAt *time.Time) *User {
	user := &User{
		ID:           m.nextUserID,
		Name:         name,
		Email:        email,
		PasswordHash: "$2a$10$existinghash",
		Status:       status,
		LastSeenAt:   lastSeenAt,
	}
	m.users[user.ID] = user
	m.nextUserID++
	return user
}

func (m *mockRepository) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, user := range m.users {
		out = append(out, *user)
	}
	return out, nil
}

func (m *mockRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	for _, user := range m.users {
		if user.Email == email && user.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error) {
	user := m.addUser(name, email, StatusActive, nil)
	user.PasswordHash = passwordHash
	return user, nil
}

func (m *mockRepository) UpdateUser(ctx context.Context, id int64, name, email string, passwordHash *string) error {
	user, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.Name = name
	user.Email = email
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	user, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.Status = status
	return nil
}

func (m *mockRepository) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type mockRevoker struct {
	calls []int64
	err   error
}

func (m *mockRevoker) RevokeUserSessions(ctx context.Context, userID int64) error {
	m.calls = append(m.calls, userID)
	return m.err
}

type mockAudit struct {
	records []shared.AuditLog
}

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.records = append(m.records, log)
	return nil
}

func newService(repo *mockRepository, revoker *mockRevoker, audit *mockAudit) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Pass interface nils (not typed nils) so the service's nil guards apply.
	var revokerPort SessionRevoker
	if revoker != nil {
		revokerPort = revoker
	}
	var auditPort shared.AuditRecorder
	if audit != nil {
		auditPort = audit
	}
	return NewService(repo, presence.DefaultConfig(), revokerPort, auditPort, logger)
}

// ============================================================================
// CREATE
// ============================================================================

func TestCreateUser(t *testing.T) {
	repo := newMockRepository()
	audit := &mockAudit{}
	svc := newService(repo, nil, audit)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Name:                 "  Jane Doe  ",
		Email:                "jane@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	}, 9)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", user.Name)
	assert.Equal(t, StatusActive, user.Status)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))

	require.Len(t, audit.records, 1)
	assert.Equal(t, "user.create", audit.records[0].Action)
	assert.Equal(t, int64(9), audit.records[0].ActorID)
}

func TestCreateUserValidation(t *testing.T) {
	repo := newMockRepository()
	repo.addUser("Existing", "taken@example.com", StatusActive, nil)
	svc := newService(repo, nil, nil)

	cases := []struct {
		name  string
		req   CreateUserRequest
		field string
	}{
		{
			name:  "missing name",
			req:   CreateUserRequest{Email: "a@example.com", Password: "password123", PasswordConfirmation: "password123"},
			field: "name",
		},
		{
			name:  "invalid email",
			req:   CreateUserRequest{Name: "A", Email: "not-an-email", Password: "password123", PasswordConfirmation: "password123"},
			field: "email",
		},
		{
			name:  "short password",
			req:   CreateUserRequest{Name: "A", Email: "a@example.com", Password: "short", PasswordConfirmation: "short"},
			field: "password",
		},
		{
			name:  "confirmation mismatch",
			req:   CreateUserRequest{Name: "A", Email: "a@example.com", Password: "password123", PasswordConfirmation: "password456"},
			field: "password",
		},
		{
			name:  "duplicate email",
			req:   CreateUserRequest{Name: "A", Email: "taken@example.com", Password: "password123", PasswordConfirmation: "password123"},
			field: "email",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req, 1)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
			assert.Len(t, repo.users, 1)
		})
	}
}

// ============================================================================
// UPDATE
// ============================================================================

func TestUpdateUserKeepsPasswordWhenOmitted(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	originalHash := user.PasswordHash
	svc := newService(repo, nil, nil)

	err := svc.Update(context.Background(), user.ID, UpdateUserRequest{
		Name:  "Jane Q",
		Email: "jane@example.com",
	}, 9)
	require.NoError(t, err)

	assert.Equal(t, "Jane Q", repo.users[user.ID].Name)
	assert.Equal(t, originalHash, repo.users[user.ID].PasswordHash)
}

func TestUpdateUserRehashesNewPassword(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	svc := newService(repo, nil, nil)

	err := svc.Update(context.Background(), user.ID, UpdateUserRequest{
		Name:                 "Jane",
		Email:                "jane@example.com",
		Password:             "newpassword",
		PasswordConfirmation: "newpassword",
	}, 9)
	require.NoError(t, err)

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("newpassword")))
}

func TestUpdateUserUniquenessExcludesSelf(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	other := repo.addUser("John", "john@example.com", StatusActive, nil)
	svc := newService(repo, nil, nil)

	err := svc.Update(context.Background(), user.ID, UpdateUserRequest{Name: "Jane", Email: "jane@example.com"}, 9)
	require.NoError(t, err)

	err = svc.Update(context.Background(), user.ID, UpdateUserRequest{Name: "Jane", Email: other.Email}, 9)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
}

func TestUpdateUserNotFound(t *testing.T) {
	svc := newService(newMockRepository(), nil, nil)

	err := svc.Update(context.Background(), 42, UpdateUserRequest{Name: "Jane", Email: "jane@example.com"}, 9)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// STATUS
// ============================================================================

func TestBlockOwnAccountForbidden(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	revoker := &mockRevoker{}
	svc := newService(repo, revoker, nil)

	err := svc.UpdateStatus(context.Background(), user.ID, StatusBlocked, user.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, StatusActive, repo.users[user.ID].Status)
	assert.Empty(t, revoker.calls)
}

func TestBlockUserRevokesSessionsOnce(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	revoker := &mockRevoker{}
	audit := &mockAudit{}
	svc := newService(repo, revoker, audit)

	require.NoError(t, svc.UpdateStatus(context.Background(), user.ID, StatusBlocked, 9))
	assert.Equal(t, StatusBlocked, repo.users[user.ID].Status)
	assert.Equal(t, []int64{user.ID}, revoker.calls)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "user.status", audit.records[0].Action)
}

func TestBlockAlreadyBlockedUserSkipsRevocation(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusBlocked, nil)
	revoker := &mockRevoker{}
	svc := newService(repo, revoker, nil)

	require.NoError(t, svc.UpdateStatus(context.Background(), user.ID, StatusBlocked, 9))
	assert.Empty(t, revoker.calls)
}

func TestUnblockUserSkipsRevocation(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusBlocked, nil)
	revoker := &mockRevoker{}
	svc := newService(repo, revoker, nil)

	require.NoError(t, svc.UpdateStatus(context.Background(), user.ID, StatusActive, 9))
	assert.Equal(t, StatusActive, repo.users[user.ID].Status)
	assert.Empty(t, revoker.calls)
}

func TestBlockSurvivesRevokerFailure(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	revoker := &mockRevoker{err: errors.New("queue down")}
	svc := newService(repo, revoker, nil)

	require.NoError(t, svc.UpdateStatus(context.Background(), user.ID, StatusBlocked, 9))
	assert.Equal(t, StatusBlocked, repo.users[user.ID].Status)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	svc := newService(repo, nil, nil)

	err := svc.UpdateStatus(context.Background(), user.ID, "suspended", 9)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")
	assert.Equal(t, StatusActive, repo.users[user.ID].Status)
}

// ============================================================================
// DELETE
// ============================================================================

func TestDeleteOwnAccountForbidden(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	svc := newService(repo, nil, nil)

	_, err := svc.Delete(context.Background(), user.ID, user.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.users, user.ID)
}

func TestDeleteUser(t *testing.T) {
	repo := newMockRepository()
	user := repo.addUser("Jane", "jane@example.com", StatusActive, nil)
	audit := &mockAudit{}
	svc := newService(repo, nil, audit)

	deleted, err := svc.Delete(context.Background(), user.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, "Jane", deleted.Name)
	assert.NotContains(t, repo.users, user.ID)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "user.delete", audit.records[0].Action)
}

func TestDeleteUserNotFound(t *testing.T) {
	svc := newService(newMockRepository(), nil, nil)

	_, err := svc.Delete(context.Background(), 42, 9)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// PRESENCE
// ============================================================================

func TestListDerivesPresence(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	online := now.Add(-2 * time.Minute)
	recent := now.Add(-30 * time.Minute)
	stale := now.Add(-48 * time.Hour)

	repo := newMockRepository()
	repo.addUser("Online", "online@example.com", StatusActive, &online)
	repo.addUser("Recent", "recent@example.com", StatusActive, &recent)
	repo.addUser("Stale", "stale@example.com", StatusActive, &stale)
	repo.addUser("Never", "never@example.com", StatusActive, nil)

	svc := newService(repo, nil, nil)
	svc.now = func() time.Time { return now }

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 4)

	byEmail := make(map[string]ListedUser, len(list))
	for _, u := range list {
		byEmail[u.Email] = u
	}

	assert.True(t, byEmail["online@example.com"].IsOnline)
	assert.Equal(t, presence.StatusOnline, byEmail["online@example.com"].OnlineStatus)
	assert.Equal(t, "Online", byEmail["online@example.com"].LastSeenText)

	assert.False(t, byEmail["recent@example.com"].IsOnline)
	assert.Equal(t, presence.StatusRecently, byEmail["recent@example.com"].OnlineStatus)
	assert.Equal(t, "30 minutes ago", byEmail["recent@example.com"].LastSeenText)

	assert.Equal(t, presence.StatusOffline, byEmail["stale@example.com"].OnlineStatus)
	assert.Equal(t, "2 days ago", byEmail["stale@example.com"].LastSeenText)

	assert.Equal(t, "Never", byEmail["never@example.com"].LastSeenText)
	assert.Equal(t, presence.StatusOffline, byEmail["never@example.com"].OnlineStatus)
}
