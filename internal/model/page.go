package model

// Module groups pages for menu rendering.
type Module struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Page is a unit of UI navigation.  Roles are associated with pages through
// the `role_pages` join table.
type Page struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Mobile     bool   `json:"mobile"`
	Icon       string `json:"icon"`
	Redirect   string `json:"redirect"`
	ModuleID   uint64 `json:"moduleId"`
	ModuleName string `json:"moduleName"`
}

// MenuModule is one module of a built menu with its ordered pages.
type MenuModule struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Pages []Page `json:"pages"`
}
