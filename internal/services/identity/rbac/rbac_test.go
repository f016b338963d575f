package rbac

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Role
	}{
		{name: "canonical", input: "platform_manager", want: RolePlatformManager},
		{name: "uppercase", input: "PLATFORM_MANAGER", want: RolePlatformManager},
		{name: "padded", input: "  tenant_operator  ", want: RoleTenantOperator},
		{name: "unknown falls back to user", input: "root", want: RoleUser},
		{name: "empty falls back to user", input: "", want: RoleUser},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsStaffFixedSet(t *testing.T) {
	staff := []Role{RolePlatformSupport, RolePlatformManager, RoleSuperAdmin}
	for _, role := range staff {
		if !IsStaff(role) {
			t.Fatalf("expected %q to be staff", role)
		}
	}
	nonStaff := []Role{RoleUser, RoleTenantOperator, RoleTenantTeamMember}
	for _, role := range nonStaff {
		if IsStaff(role) {
			t.Fatalf("expected %q not to be staff", role)
		}
	}
}

func TestOperatorDashboardAsymmetry(t *testing.T) {
	// A tenant operator reaches the dashboard but never platform
	// administration.
	if !CanUseDashboard(RoleTenantOperator) {
		t.Fatal("expected tenant operator to use dashboard")
	}
	if IsStaff(RoleTenantOperator) {
		t.Fatal("tenant operator must not be platform staff")
	}
	if Can(RoleTenantOperator, ActionManageTenants) {
		t.Fatal("tenant operator must not manage tenants")
	}
	if Can(RoleTenantOperator, ActionPlatformSettings) {
		t.Fatal("tenant operator must not touch platform settings")
	}
}

func TestCanUnknownActionDenied(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleTenantOperator, RoleSuperAdmin} {
		if Can(role, Action("totally.made.up")) {
			t.Fatalf("expected unknown action denied for %q", role)
		}
	}
}

func TestCanUnknownRoleDenied(t *testing.T) {
	if Can(Role("intruder"), ActionViewOrders) {
		t.Fatal("expected unknown role denied")
	}
}

func TestCanTable(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleUser, ActionViewOrders, true},
		{RoleUser, ActionViewDashboard, false},
		{RoleTenantTeamMember, ActionManageTeam, false},
		{RoleTenantTeamMember, ActionManageCatalog, true},
		{RolePlatformSupport, ActionSupportTickets, true},
		{RolePlatformSupport, ActionManageTenants, false},
		{RolePlatformManager, ActionManageTenants, true},
		{RoleSuperAdmin, ActionPlatformSettings, true},
	}
	for _, tc := range tests {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}
