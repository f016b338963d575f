// Package rbac maps principal roles to capability sets.
//
// Every "is this role allowed" question in the identity service goes through
// this package. Components never keep their own role allow-lists.
package rbac

import "strings"

// Role is the enumerated principal role.
//
// Roles are normalized exactly twice: once when a token is issued and once
// when a directory record is read. Everywhere else a Role is trusted as-is.
type Role string

const (
	// RoleUser is an end user subscribing to tenant services.
	RoleUser Role = "user"
	// RoleTenantOperator owns a tenant profile and its catalog.
	RoleTenantOperator Role = "tenant_operator"
	// RoleTenantTeamMember works inside another principal's tenant.
	RoleTenantTeamMember Role = "tenant_team_member"
	// RolePlatformSupport handles cross-tenant support tickets.
	RolePlatformSupport Role = "platform_support"
	// RolePlatformManager administers tenants and platform settings.
	RolePlatformManager Role = "platform_manager"
	// RoleSuperAdmin has every capability.
	RoleSuperAdmin Role = "super_admin"
)

// Action names a guarded operation on the platform.
type Action string

const (
	ActionViewDashboard    Action = "dashboard.view"
	ActionManageCatalog    Action = "catalog.manage"
	ActionManageCoupons    Action = "coupons.manage"
	ActionViewOrders       Action = "orders.view"
	ActionManageTeam       Action = "team.manage"
	ActionSupportTickets   Action = "support.tickets"
	ActionManageTenants    Action = "tenants.manage"
	ActionPlatformSettings Action = "platform.settings"
)

// Normalize canonicalizes a raw role string. Unknown values fall back to
// RoleUser so a corrupted claim can never widen access.
func Normalize(raw string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleUser, RoleTenantOperator, RoleTenantTeamMember,
		RolePlatformSupport, RolePlatformManager, RoleSuperAdmin:
		return role
	default:
		return RoleUser
	}
}

// IsStaff reports whether the role belongs to the fixed platform-staff set.
//
// Tenant operators are deliberately NOT staff: they are staff-equivalent for
// dashboard features (see CanUseDashboard) but never for platform
// administration. Keeping the asymmetry in two named predicates is what stops
// it from being re-derived inconsistently elsewhere.
func IsStaff(role Role) bool {
	switch role {
	case RolePlatformSupport, RolePlatformManager, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// CanUseDashboard reports whether the role may enter the tenant dashboard
// surface. This admits tenant operators and team members alongside platform
// staff.
func CanUseDashboard(role Role) bool {
	switch role {
	case RoleTenantOperator, RoleTenantTeamMember:
		return true
	default:
		return IsStaff(role)
	}
}

// permissions is the static role to capability table. Unknown actions are
// denied for every role.
var permissions = map[Role]map[Action]bool{
	RoleUser: {
		ActionViewOrders: true,
	},
	RoleTenantOperator: {
		ActionViewDashboard: true,
		ActionManageCatalog: true,
		ActionManageCoupons: true,
		ActionViewOrders:    true,
		ActionManageTeam:    true,
	},
	RoleTenantTeamMember: {
		ActionViewDashboard: true,
		ActionManageCatalog: true,
		ActionViewOrders:    true,
	},
	RolePlatformSupport: {
		ActionViewDashboard:  true,
		ActionViewOrders:     true,
		ActionSupportTickets: true,
	},
	RolePlatformManager: {
		ActionViewDashboard:    true,
		ActionViewOrders:       true,
		ActionSupportTickets:   true,
		ActionManageTenants:    true,
		ActionPlatformSettings: true,
	},
	RoleSuperAdmin: {
		ActionViewDashboard:    true,
		ActionManageCatalog:    true,
		ActionManageCoupons:    true,
		ActionViewOrders:       true,
		ActionManageTeam:       true,
		ActionSupportTickets:   true,
		ActionManageTenants:    true,
		ActionPlatformSettings: true,
	},
}

// Can reports whether the role is granted the action. Unknown roles and
// unknown actions are denied.
func Can(role Role, action Action) bool {
	grants, ok := permissions[role]
	if !ok {
		return false
	}
	return grants[action]
}
