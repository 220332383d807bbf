package roles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steward-admin/steward-admin/internal/platform/db"
	"github.com/steward-admin/steward-admin/internal/shared"
)

// RepositoryPort defines data access methods for roles. The permission-set
// mutations are transactional: role write and link replace succeed or fail
// together.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	GetRoleUsers(ctx context.Context, id int64) ([]AssignedUser, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	CreateRole(ctx context.Context, name string, permissions []string) (*Role, error)
	UpdateRole(ctx context.Context, id int64, name string, permissions []string) error
	DeleteRoles(ctx context.Context, ids []int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleListQuery = `
	SELECT r.id, r.name, r.created_at, r.updated_at,
	       COALESCE(ARRAY_AGG(DISTINCT p.name) FILTER (WHERE p.id IS NOT NULL), '{}') AS permissions,
	       COUNT(DISTINCT ur.user_id) AS user_count
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
	LEFT JOIN user_roles ur ON ur.role_id = r.id`

// ListRoles returns all roles with permission names and user counts.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, roleListQuery+` GROUP BY r.id ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRole fetches a single role with permission names and user count.
func (r *Repository) GetRole(ctx context.Context, id int64) (*Role, error) {
	rows, err := r.pool.Query(ctx, roleListQuery+` WHERE r.id = $1 GROUP BY r.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, shared.ErrNotFound
	}
	return &roles[0], nil
}

// GetRolesByIDs fetches the roles matching ids, with user counts.
func (r *Repository) GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, roleListQuery+` WHERE r.id = ANY($1) GROUP BY r.id ORDER BY r.name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRoleUsers returns the users assigned to a role.
func (r *Repository) GetRoleUsers(ctx context.Context, id int64) ([]AssignedUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.email
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role_id = $1
		ORDER BY u.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []AssignedUser
	for rows.Next() {
		var u AssignedUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// NameExists reports whether another role already uses the name.
func (r *Repository) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&exists)
	return exists, err
}

// CreateRole inserts the role and attaches its permission set in one
// transaction.
func (r *Repository) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	var created Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (name, created_at, updated_at)
			VALUES ($1, NOW(), NOW())
			RETURNING id, name, created_at, updated_at`, name).
			Scan(&created.ID, &created.Name, &created.CreatedAt, &created.UpdatedAt); err != nil {
			return err
		}
		return replacePermissions(ctx, tx, created.ID, permissions)
	})
	if err != nil {
		return nil, err
	}
	created.Permissions = append([]string(nil), permissions...)
	return &created, nil
}

// UpdateRole renames the role and replaces its permission set in one
// transaction.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name string, permissions []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replacePermissions(ctx, tx, id, permissions)
	})
}

// DeleteRoles removes the roles and their association rows in one
// transaction.
func (r *Repository) DeleteRoles(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = ANY($1)`, ids); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = ANY($1)`, ids); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = ANY($1)`, ids)
		return err
	})
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissions []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(permissions) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, p.id FROM permissions p WHERE p.name = ANY($2)`, roleID, permissions)
	return err
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt, &role.Permissions, &role.UserCount); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

var _ RepositoryPort = (*Repository)(nil)
