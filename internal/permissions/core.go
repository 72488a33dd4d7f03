package permissions

import "github.com/domushq/domus/internal/models"

// Permission codes checked by the API.
const (
	UserRead              = "user.read"
	UserCreateAdmin       = "user.create_admin"
	UserManagerCreate     = "user.manager.create"
	UserManagerUpdate     = "user.manager.update"
	UserDisable           = "user.disable"
	UserDelete            = "user.delete"
	RoleAssignPermissions = "role.assign_permissions"

	HouseRead   = "house.read"
	HouseCreate = "house.create"
	HouseUpdate = "house.update"
	HouseDelete = "house.delete"

	ResidentRead   = "resident.read"
	ResidentManage = "resident.manage"
)

// BuiltinRoles are seeded at startup together with their descriptions.
var BuiltinRoles = map[string]string{
	models.RoleSuperadmin: "Unrestricted platform owner",
	models.RoleAdmin:      "Administers users and houses within a scope",
	models.RoleManager:    "Maintains residents of the houses in scope",
}

var (
	superadminOnly = []string{models.RoleSuperadmin}
	admins         = []string{models.RoleSuperadmin, models.RoleAdmin}
	everyone       = []string{models.RoleSuperadmin, models.RoleAdmin, models.RoleManager}
)

func init() {
	perms := []*Permission{
		{ID: UserRead, Module: "users", Description: "View users", DefaultRoles: admins},
		{ID: UserCreateAdmin, Module: "users", Description: "Create administrators", DefaultRoles: superadminOnly},
		{ID: UserManagerCreate, Module: "users", Description: "Create managers", DefaultRoles: admins},
		{ID: UserManagerUpdate, Module: "users", Description: "Update managers", DefaultRoles: admins},
		{ID: UserDisable, Module: "users", Description: "Disable and enable users", DefaultRoles: admins},
		{ID: UserDelete, Module: "users", Description: "Delete users", DefaultRoles: admins},
		{ID: RoleAssignPermissions, Module: "users", Description: "Assign roles, boosts and delegation caps", DefaultRoles: admins},

		{ID: HouseRead, Module: "houses", Description: "View house structure", DefaultRoles: everyone},
		{ID: HouseCreate, Module: "houses", Description: "Create houses", DefaultRoles: superadminOnly},
		{ID: HouseUpdate, Module: "houses", Description: "Update houses", DefaultRoles: admins},
		{ID: HouseDelete, Module: "houses", Description: "Delete houses", DefaultRoles: superadminOnly},

		{ID: ResidentRead, Module: "residents", Description: "View residents", DefaultRoles: everyone},
		{ID: ResidentManage, Module: "residents", Description: "Create and update residents", DefaultRoles: everyone},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
