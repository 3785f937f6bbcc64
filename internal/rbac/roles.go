package rbac

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleOwner           = "owner"
	RoleAgent           = "agent"
	RoleAnalyst         = "analyst"
	RoleSuperAdmin      = "super_admin"
	RoleNetworkOperator = "network_operator" // hidden role
)

// Route groups.
var (
	DialRoles    = []string{RoleOwner, RoleAgent}
	HistoryRoles = []string{RoleOwner, RoleAnalyst}
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
