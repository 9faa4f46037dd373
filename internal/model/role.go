package model

// Role is the class a user belongs to, as reported by the identity
// collaborator. Quota limits and permissions key off it.
type Role string

const (
	RoleMember     Role = "member"
	RolePrivileged Role = "privileged"
	RoleMaintainer Role = "maintainer"
	RoleExternal   Role = "external"
)

// ValidRole reports whether r is one of the recognized role classes.
func ValidRole(r Role) bool {
	switch r {
	case RoleMember, RolePrivileged, RoleMaintainer, RoleExternal:
		return true
	}
	return false
}
