package authz

const (
	RoleSales      = 10
	RoleOperations = 20
	RoleAudit      = 30
	RoleManagement = 40
	RoleAdmin      = 50
)

// AllRoles: все, кому доступен экран CRM.
var AllRoles = []int{RoleSales, RoleOperations, RoleAudit, RoleManagement, RoleAdmin}

func IsElevated(roleID int) bool {
	return roleID == RoleOperations || roleID == RoleManagement || roleID == RoleAdmin
}

// SeesAllLeads: продажник видит только лиды, где он ответственный.
func SeesAllLeads(roleID int) bool {
	return IsElevated(roleID) || roleID == RoleAudit
}
