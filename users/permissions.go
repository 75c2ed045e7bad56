package users

import "errors"

// ErrForbidden is returned when the signed-in role lacks a permission.
var ErrForbidden = errors.New("insufficient permissions")

// Permission represents a named capability in the admin client.
type Permission string

const (
	PermCustomerRead   Permission = "customer:read"
	PermCustomerManage Permission = "customer:manage"
	PermProductRead    Permission = "product:read"
	PermProductManage  Permission = "product:manage"
	PermSalesManage    Permission = "sales:manage"
	PermPurchaseManage Permission = "purchase:manage"
	PermReportView     Permission = "report:view"
	PermReportExport   Permission = "report:export"
	PermStoreRead      Permission = "store:read"
	PermStoreManage    Permission = "store:manage"
	PermStoreMine      Permission = "store:mine"
	PermStaffManage    Permission = "staff:manage"
	PermSupplierManage Permission = "supplier:manage"
	PermMasterManage   Permission = "master:manage"
	PermProfileUpdate  Permission = "profile:update"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for role gating in the client.
var rolePermissions = map[Role][]Permission{
	RoleStaff: {
		PermCustomerRead,
		PermCustomerManage,
		PermProductRead,
		PermSalesManage,
		PermPurchaseManage,
		PermReportView,
		PermStoreRead,
		PermStoreMine, // staff only: the my-store endpoint refuses admins
		PermProfileUpdate,
	},
	RoleAdmin: {
		PermCustomerRead,
		PermCustomerManage,
		PermProductRead,
		PermProductManage,
		PermSalesManage,
		PermPurchaseManage,
		PermReportView,
		PermReportExport,
		PermStoreRead,
		PermStoreManage,
		PermStaffManage,
		PermSupplierManage,
		PermMasterManage,
		PermProfileUpdate,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// IsStoreScoped returns true if the role is restricted to an assigned store and
// must pass store assignment validation before a session is granted.
func IsStoreScoped(role Role) bool {
	return role == RoleStaff
}
