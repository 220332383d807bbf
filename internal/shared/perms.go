package shared

// Capability names checked by the authorization guard. The wording follows
// the seeded permission records ("<noun> <verb>").
const (
	PermViewRoles   = "view roles"
	PermCreateRoles = "create roles"
	PermEditRoles   = "edit roles"
	PermDeleteRoles = "delete roles"

	PermViewUsers   = "view users"
	PermManageUsers = "manage users"
)

// Route-tier role names. The dashboard is open to all three; the management
// screens only to super admins.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// SuperAdminRoleName is the immutable role that may never be edited or
// deleted through the admin screens.
const SuperAdminRoleName = "super-admin"
