package permissions

// Admin panel permissions. Every admin.* permission depends on admin.access so
// a role cannot reach a section without being allowed into the panel.
const (
	AdminAccess       = "admin.access"
	AdminPlugins      = "admin.plugins"
	AdminThemes       = "admin.themes"
	AdminSettings     = "admin.settings"
	AdminNavbar       = "admin.navbar"
	AdminPosts        = "admin.posts"
	AdminPages        = "admin.pages"
	AdminServers      = "admin.servers"
	AdminUsers        = "admin.users"
	AdminLogs         = "admin.logs"
	AdminTranslations = "admin.translations"
	AdminBackups      = "admin.backups"
	AdminUpdates      = "admin.updates"
)

func init() {
	perms := []*Permission{
		{ID: AdminAccess, Module: "core", Description: "Access the admin panel"},
		{ID: AdminPlugins, Module: "extensions", DependsOn: []string{AdminAccess}, Description: "Install, enable and remove plugins"},
		{ID: AdminThemes, Module: "extensions", DependsOn: []string{AdminAccess}, Description: "Install, activate and configure themes"},
		{ID: AdminUpdates, Module: "extensions", DependsOn: []string{AdminAccess}, Description: "Check and apply updates"},
		{ID: AdminSettings, Module: "core", DependsOn: []string{AdminAccess}, Description: "Edit site settings"},
		{ID: AdminNavbar, Module: "content", DependsOn: []string{AdminAccess}, Description: "Edit the site navigation"},
		{ID: AdminPosts, Module: "content", DependsOn: []string{AdminAccess}, Description: "Manage news posts"},
		{ID: AdminPages, Module: "content", DependsOn: []string{AdminAccess}, Description: "Manage pages"},
		{ID: AdminServers, Module: "content", DependsOn: []string{AdminAccess}, Description: "Manage game servers"},
		{ID: AdminUsers, Module: "core", DependsOn: []string{AdminAccess}, Description: "Manage users and roles"},
		{ID: AdminLogs, Module: "core", DependsOn: []string{AdminAccess}, Description: "View the action log"},
		{ID: AdminTranslations, Module: "core", DependsOn: []string{AdminAccess}, Description: "Edit translations"},
		{ID: AdminBackups, Module: "core", DependsOn: []string{AdminSettings}, Description: "Create and restore database backups"},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
