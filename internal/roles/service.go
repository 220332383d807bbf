package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/steward-admin/steward-admin/internal/rbac"
	"github.com/steward-admin/steward-admin/internal/shared"
)

// PermissionCatalog exposes the permission store to role management.
// Satisfied by *rbac.Service.
type PermissionCatalog interface {
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	MissingPermissions(ctx context.Context, names []string) ([]string, error)
}

// Service handles role business logic.
type Service struct {
	repo    RepositoryPort
	catalog PermissionCatalog
	audit   shared.AuditRecorder
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, catalog PermissionCatalog, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, logger: logger}
}

// List returns all roles with their permission sets and user counts.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// PermissionOptions returns the catalogue grouped for the create/edit forms.
func (s *Service) PermissionOptions(ctx context.Context) ([]string, map[string][]rbac.Permission, error) {
	perms, err := s.catalog.ListPermissions(ctx)
	if err != nil {
		return nil, nil, err
	}
	keys, grouped := rbac.GroupPermissions(perms)
	return keys, grouped, nil
}

// Get returns the role with its permissions and assigned users.
func (s *Service) Get(ctx context.Context, id int64) (*RoleDetail, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.GetRoleUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RoleDetail{Role: *role, Users: users}, nil
}

// Create validates the request and creates the role together with its
// permission set. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, req SaveRoleRequest, actorID int64) (*Role, error) {
	req.Name = strings.TrimSpace(req.Name)
	if verr, err := s.validateSave(ctx, req, 0); err != nil {
		return nil, err
	} else if verr != nil {
		return nil, verr
	}

	role, err := s.repo.CreateRole(ctx, req.Name, req.Permissions)
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	s.recordAudit(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name, "permissions": req.Permissions})
	return role, nil
}

// Update validates the request and applies rename plus permission-set
// replace. The super-admin role is immutable.
func (s *Service) Update(ctx context.Context, id int64, req SaveRoleRequest, actorID int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == shared.SuperAdminRoleName {
		return fmt.Errorf("%w: cannot update super admin role", shared.ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if verr, err := s.validateSave(ctx, req, id); err != nil {
		return err
	} else if verr != nil {
		return verr
	}

	if err := s.repo.UpdateRole(ctx, id, req.Name, req.Permissions); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	s.recordAudit(ctx, actorID, "role.update", id, map[string]any{"name": req.Name, "permissions": req.Permissions})
	return nil
}

// Delete removes a single role. Forbidden for super-admin, Conflict when the
// role still has users.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == shared.SuperAdminRoleName {
		return fmt.Errorf("%w: cannot delete super admin role", shared.ErrForbidden)
	}
	if blocked := blockedForDeletion([]Role{*role}); len(blocked) > 0 {
		return fmt.Errorf("%w: role has users assigned", shared.ErrConflict)
	}
	if err := s.repo.DeleteRoles(ctx, []int64{id}); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	s.recordAudit(ctx, actorID, "role.delete", id, map[string]any{"name": role.Name})
	return nil
}

// BulkDelete removes the candidate roles in one shot. Super-admin is
// silently excluded from the candidates. If any candidate still has users
// the whole batch is aborted and their names reported; nothing is deleted.
func (s *Service) BulkDelete(ctx context.Context, ids []int64, actorID int64) (*BulkDeleteResult, error) {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"ids": "at least one role id is required"}}
	}

	fetched, err := s.repo.GetRolesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, fetched); len(missing) > 0 {
		return nil, &ValidationError{Fields: map[string]string{"ids": "unknown role ids: " + joinIDs(missing)}}
	}

	candidates := make([]Role, 0, len(fetched))
	for _, role := range fetched {
		if role.Name == shared.SuperAdminRoleName {
			continue
		}
		candidates = append(candidates, role)
	}

	if blocked := blockedForDeletion(candidates); len(blocked) > 0 {
		return &BulkDeleteResult{BlockedRoles: blocked}, nil
	}

	deletable := make([]int64, 0, len(candidates))
	names := make([]string, 0, len(candidates))
	for _, role := range candidates {
		deletable = append(deletable, role.ID)
		names = append(names, role.Name)
	}
	if err := s.repo.DeleteRoles(ctx, deletable); err != nil {
		return nil, fmt.Errorf("bulk delete roles: %w", err)
	}
	s.recordAudit(ctx, actorID, "role.bulk_delete", 0, map[string]any{"ids": deletable, "names": names})
	return &BulkDeleteResult{Deleted: deletable}, nil
}

// blockedForDeletion is the single source of the "role with users cannot be
// deleted" rule, used by both the single and the bulk path.
func blockedForDeletion(candidates []Role) []string {
	var blocked []string
	for _, role := range candidates {
		if role.UserCount > 0 {
			blocked = append(blocked, role.Name)
		}
	}
	return blocked
}

func (s *Service) validateSave(ctx context.Context, req SaveRoleRequest, excludeID int64) (*ValidationError, error) {
	fields := make(map[string]string)
	switch {
	case req.Name == "":
		fields["name"] = "name is required"
	case len(req.Name) > 255:
		fields["name"] = "name must not exceed 255 characters"
	default:
		taken, err := s.repo.NameExists(ctx, req.Name, excludeID)
		if err != nil {
			return nil, fmt.Errorf("check role name: %w", err)
		}
		if taken {
			fields["name"] = "name has already been taken"
		}
	}

	if len(req.Permissions) == 0 {
		fields["permissions"] = "at least one permission is required"
	} else {
		missing, err := s.catalog.MissingPermissions(ctx, req.Permissions)
		if err != nil {
			return nil, fmt.Errorf("check permissions: %w", err)
		}
		if len(missing) > 0 {
			fields["permissions"] = "unknown permissions: " + strings.Join(missing, ", ")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}, nil
	}
	return nil, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit role action", slog.String("action", action), slog.Any("error", err))
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(ids []int64, fetched []Role) []int64 {
	present := make(map[int64]struct{}, len(fetched))
	for _, role := range fetched {
		present[role.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
