package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-admin/steward-admin/internal/rbac"
	"github.com/steward-admin/steward-admin/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	roles      map[int64]*Role
	users      map[int64][]AssignedUser
	nextRoleID int64

	deleteError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:      make(map[int64]*Role),
		users:      make(map[int64][]AssignedUser),
		nextRoleID: 1,
	}
}

func (m *mockRepository) addRole(name string, permissions []string, userCount int64) *Role {
	role := &Role{ID: m.nextRoleID, Name: name, Permissions: permissions, UserCount: userCount}
	m.roles[role.ID] = role
	m.nextRoleID++
	return role
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (*Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *role
	return &copied, nil
}

func (m *mockRepository) GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	var out []Role
	for _, id := range ids {
		if role, ok := m.roles[id]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *mockRepository) GetRoleUsers(ctx context.Context, id int64) ([]AssignedUser, error) {
	return m.users[id], nil
}

func (m *mockRepository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	for _, role := range m.roles {
		if role.Name == name && role.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	return m.addRole(name, permissions, 0), nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, id int64, name string, permissions []string) error {
	role, ok := m.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	role.Name = name
	role.Permissions = append([]string(nil), permissions...)
	return nil
}

func (m *mockRepository) DeleteRoles(ctx context.Context, ids []int64) error {
	if m.deleteError != nil {
		return m.deleteError
	}
	for _, id := range ids {
		delete(m.roles, id)
	}
	return nil
}

type mockCatalog struct {
	known []string
}

func (m *mockCatalog) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	perms := make([]rbac.Permission, len(m.known))
	for i, name := range m.known {
		perms[i] = rbac.Permission{ID: int64(i + 1), Name: name}
	}
	return perms, nil
}

func (m *mockCatalog) MissingPermissions(ctx context.Context, names []string) ([]string, error) {
	known := make(map[string]struct{}, len(m.known))
	for _, name := range m.known {
		known[name] = struct{}{}
	}
	var missing []string
	for _, name := range names {
		if _, ok := known[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

type recordedAudit struct {
	logs []shared.AuditLog
}

func (r *recordedAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newService(repo *mockRepository, known ...string) (*Service, *recordedAudit) {
	if len(known) == 0 {
		known = []string{"view roles", "create roles", "edit roles", "delete roles", "post edit"}
	}
	audit := &recordedAudit{}
	return NewService(repo, &mockCatalog{known: known}, audit, nil), audit
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRole(t *testing.T) {
	repo := newMockRepository()
	svc, audit := newService(repo)

	role, err := svc.Create(context.Background(), SaveRoleRequest{Name: "editor", Permissions: []string{"post edit"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, []string{"post edit"}, role.Permissions)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "role.create", audit.logs[0].Action)
}

func TestCreateRoleUnknownPermissionCreatesNothing(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newService(repo)

	before := len(repo.roles)
	_, err := svc.Create(context.Background(), SaveRoleRequest{Name: "editor", Permissions: []string{"no such permission"}}, 1)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["permissions"], "no such permission")
	assert.Len(t, repo.roles, before)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("editor", nil, 0)
	svc, _ := newService(repo)

	_, err := svc.Create(context.Background(), SaveRoleRequest{Name: "editor", Permissions: []string{"post edit"}}, 1)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["name"], "taken")
}

func TestCreateRoleRequiresPermissions(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newService(repo)

	_, err := svc.Create(context.Background(), SaveRoleRequest{Name: "editor"}, 1)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Fields["permissions"])
}

func TestUpdateRoleUniquenessExcludesSelf(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("editor", []string{"post edit"}, 0)
	svc, _ := newService(repo)

	// Saving the same name back must not trip the uniqueness check.
	err := svc.Update(context.Background(), role.ID, SaveRoleRequest{Name: "editor", Permissions: []string{"view roles"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"view roles"}, repo.roles[role.ID].Permissions)
}

func TestUpdateSuperAdminForbidden(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole(shared.SuperAdminRoleName, []string{"view roles"}, 1)
	svc, _ := newService(repo)

	err := svc.Update(context.Background(), role.ID, SaveRoleRequest{Name: "renamed", Permissions: []string{"view roles"}}, 1)

	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, shared.SuperAdminRoleName, repo.roles[role.ID].Name)
}

func TestDeleteSuperAdminForbidden(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole(shared.SuperAdminRoleName, nil, 0)
	svc, _ := newService(repo)

	err := svc.Delete(context.Background(), role.ID, 1)

	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.roles, role.ID)
}

func TestDeleteRoleWithUsersConflicts(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("support", []string{"view roles"}, 3)
	svc, _ := newService(repo)

	err := svc.Delete(context.Background(), role.ID, 1)

	assert.ErrorIs(t, err, shared.ErrConflict)
	// Row and associations untouched.
	require.Contains(t, repo.roles, role.ID)
	assert.Equal(t, []string{"view roles"}, repo.roles[role.ID].Permissions)
}

func TestDeleteRoleWithoutUsersSucceeds(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole("editor", []string{"post edit"}, 0)
	svc, audit := newService(repo)

	before := len(repo.roles)
	err := svc.Delete(context.Background(), role.ID, 1)

	require.NoError(t, err)
	assert.Len(t, repo.roles, before-1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "role.delete", audit.logs[0].Action)
}

func TestDeleteMissingRole(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newService(repo)

	err := svc.Delete(context.Background(), 99, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBulkDeleteBlockedBatchDeletesNothing(t *testing.T) {
	repo := newMockRepository()
	blocked := repo.addRole("support", nil, 5)
	free := repo.addRole("editor", nil, 0)
	svc, _ := newService(repo)

	result, err := svc.BulkDelete(context.Background(), []int64{blocked.ID, free.ID}, 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, result.BlockedRoles)
	assert.Empty(t, result.Deleted)
	// The unblocked member of the batch survives too.
	assert.Contains(t, repo.roles, blocked.ID)
	assert.Contains(t, repo.roles, free.ID)
}

func TestBulkDeleteExcludesSuperAdmin(t *testing.T) {
	repo := newMockRepository()
	super := repo.addRole(shared.SuperAdminRoleName, nil, 2)
	free := repo.addRole("editor", nil, 0)
	svc, _ := newService(repo)

	// super-admin is excluded silently, even though it has users; the
	// remaining candidate is deleted.
	result, err := svc.BulkDelete(context.Background(), []int64{super.ID, free.ID}, 1)

	require.NoError(t, err)
	assert.Empty(t, result.BlockedRoles)
	assert.Equal(t, []int64{free.ID}, result.Deleted)
	assert.Contains(t, repo.roles, super.ID)
	assert.NotContains(t, repo.roles, free.ID)
}

func TestBulkDeleteUnknownIDs(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("editor", nil, 0)
	svc, _ := newService(repo)

	_, err := svc.BulkDelete(context.Background(), []int64{42}, 1)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["ids"], "42")
}

func TestBulkDeleteAllFree(t *testing.T) {
	repo := newMockRepository()
	a := repo.addRole("editor", nil, 0)
	b := repo.addRole("viewer", nil, 0)
	svc, audit := newService(repo)

	result, err := svc.BulkDelete(context.Background(), []int64{a.ID, b.ID}, 7)

	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, result.Deleted)
	assert.Empty(t, repo.roles)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "role.bulk_delete", audit.logs[0].Action)
	assert.Equal(t, int64(7), audit.logs[0].ActorID)
}

func TestBulkDeleteRepositoryFailurePropagates(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("editor", nil, 0)
	repo.deleteError = errors.New("tx aborted")
	svc, _ := newService(repo)

	_, err := svc.BulkDelete(context.Background(), []int64{1}, 1)
	assert.Error(t, err)
}
