package auth

import "strings"

// Role is a principal's role.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Permissions checked by the transports.
const (
	PermQRGenerate    = "qr:generate"
	PermQRValidate    = "qr:validate"
	PermScansSync     = "scans:sync"
	PermSecretsCache  = "secrets:cache"
	PermSecretsRotate = "secrets:rotate"
	PermSecretsRevoke = "secrets:revoke"
)

var roleCapabilities = map[Role][]string{
	RoleStudent: {"id:read", PermQRGenerate, "profile:read"},
	RoleAdmin: {
		"students:list", "students:view", "scans:view", PermScansSync,
		PermQRValidate, PermSecretsCache, PermSecretsRotate, "logs:read", "admin:manage",
	},
	RoleSuperAdmin: {
		"students:*", "admins:*", "permissions:*", "config:manage", "audit:export",
		"qr:*", "scans:*", "secrets:*",
	},
}

// ParseRole returns the Role named by s and whether it is known.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleCapabilities[r]
	return r, ok
}

// Capabilities returns a copy of the permission set granted to role.
func Capabilities(role Role) []string {
	caps := roleCapabilities[role]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// Allowed reports whether role grants perm. A grant of "*" matches every
// permission and "resource:*" matches every permission of that resource.
func Allowed(role Role, perm string) bool {
	for _, granted := range roleCapabilities[role] {
		if matches(granted, perm) {
			return true
		}
	}
	return false
}

func matches(granted, perm string) bool {
	if granted == "*" || granted == perm {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, "*"); ok && strings.HasSuffix(prefix, ":") {
		return strings.HasPrefix(perm, prefix)
	}
	return false
}
