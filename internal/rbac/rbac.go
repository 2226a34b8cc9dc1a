package rbac

type Role string
type Action string

const (
	// RoleDev has cross-owner visibility and administrative actions.
	RoleDev  Role = "DEV"
	RoleUser Role = "USER"
)

const (
	ActionRead         Action = "read"
	ActionWrite        Action = "write"
	ActionManageUsers  Action = "manage_users"
	ActionDeleteRecord Action = "delete_record"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleDev:
		return true
	case RoleUser:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// Elevated reports whether the role sees every record regardless of owner.
func Elevated(role Role) bool {
	return role == RoleDev
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleDev, RoleUser:
		return Role(role)
	default:
		return RoleUser
	}
}
