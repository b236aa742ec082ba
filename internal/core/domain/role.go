package domain

// Role classifies which views a principal may reach. The set is closed:
// adding a role means adding a constant here and updating every exhaustive
// switch the compiler then flags.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleNurse      Role = "nurse"
	RoleParent     Role = "parent"
	RoleStudent    Role = "student"
)

// AllRoles lists every valid role, in the order the registration flow
// presents them for selection.
func AllRoles() []Role {
	return []Role{
		RoleTeacher,
		RoleNurse,
		RoleAdmin,
		RoleParent,
		RoleStudent,
		RoleSuperAdmin,
	}
}

// ParseRole validates a raw string against the closed role set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleNurse, RoleParent, RoleStudent:
		return Role(s), true
	}
	return "", false
}

func (r Role) IsValid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// DashboardFor maps a role to its dashboard route. The switch is exhaustive
// over the closed set; an invalid role falls through to the login route so a
// corrupted record can never land on a privileged dashboard.
func DashboardFor(r Role) string {
	switch r {
	case RoleSuperAdmin:
		return "/super-admin"
	case RoleAdmin:
		return "/admin"
	case RoleTeacher:
		return "/teacher"
	case RoleNurse:
		return "/nurse"
	case RoleParent:
		return "/parent"
	case RoleStudent:
		return "/student"
	}
	return "/login"
}
