package roles

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-admin/steward-admin/internal/rbac"
	"github.com/steward-admin/steward-admin/internal/shared"
	_ "github.com/steward-admin/steward-admin/testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandlerForTest(repo *mockRepository) *Handler {
	svc, _ := newService(repo)
	return NewHandler(testLogger(), svc, nil, shared.NewCSRFManager("csrfsecret"), nil, rbac.Middleware{})
}

func bulkRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin-dashboard/roles/bulk-delete", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess := &shared.Session{ID: "test-session"}
	sess.SetUser("1")
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestBulkDeleteEndpointReportsBlockingRoles(t *testing.T) {
	repo := newMockRepository()
	blocked := repo.addRole("support", nil, 5)
	free := repo.addRole("editor", nil, 0)
	h := newHandlerForTest(repo)

	res := httptest.NewRecorder()
	h.bulkDeleteRoles(res, bulkRequest(t, `{"ids":[1,2]}`))

	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	var payload struct {
		Error          string   `json:"error"`
		RolesWithUsers []string `json:"roles_with_users"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	assert.Equal(t, []string{"support"}, payload.RolesWithUsers)
	assert.NotEmpty(t, payload.Error)
	assert.Contains(t, repo.roles, blocked.ID)
	assert.Contains(t, repo.roles, free.ID)
}

func TestBulkDeleteEndpointSuccess(t *testing.T) {
	repo := newMockRepository()
	repo.addRole("editor", nil, 0)
	h := newHandlerForTest(repo)

	res := httptest.NewRecorder()
	h.bulkDeleteRoles(res, bulkRequest(t, `{"ids":[1]}`))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, repo.roles)
	assert.Contains(t, res.Body.String(), "deleted successfully")
}

func TestBulkDeleteEndpointRejectsBadJSON(t *testing.T) {
	h := newHandlerForTest(newMockRepository())

	res := httptest.NewRecorder()
	h.bulkDeleteRoles(res, bulkRequest(t, `{"ids":`))

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestBulkDeleteEndpointUnknownIDs(t *testing.T) {
	h := newHandlerForTest(newMockRepository())

	res := httptest.NewRecorder()
	h.bulkDeleteRoles(res, bulkRequest(t, `{"ids":[42]}`))

	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "42")
}
