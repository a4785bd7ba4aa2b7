package rbac

// Permission strings follow the "<resource>:<action>" form.
const (
	PermRoleRead   = "role:read"
	PermRoleCreate = "role:create"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"

	PermUserRead   = "user:read"
	PermUserCreate = "user:create"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"
)

// FileManagerNamespace prefixes every permission delegated to the
// file-manager subsystem via scoped tokens.
const FileManagerNamespace = "file_manager:"

// contentResources are the CMS resources managed below the platform level.
var contentResources = []string{
	"post",
	"category",
	"tag",
	"service",
	"portfolio",
	"crm_category",
	"crm_company",
	"file_manager",
	"seo",
	"mail",
}

var crudActions = []string{"read", "create", "update", "delete"}

// CRUD returns the four standard permissions for a resource.
func CRUD(resource string) []string {
	perms := make([]string, 0, len(crudActions))
	for _, action := range crudActions {
		perms = append(perms, resource+":"+action)
	}
	return perms
}

// ContentPermissions lists every permission over content resources.
func ContentPermissions() []string {
	var perms []string
	for _, resource := range contentResources {
		perms = append(perms, CRUD(resource)...)
	}
	return perms
}

// Catalog lists every permission known to the platform: the content
// permissions plus the platform-level user and role administration set.
func Catalog() []string {
	perms := ContentPermissions()
	perms = append(perms,
		PermUserRead, PermUserCreate, PermUserUpdate, PermUserDelete,
		PermRoleRead, PermRoleCreate, PermRoleUpdate, PermRoleDelete,
	)
	return perms
}
