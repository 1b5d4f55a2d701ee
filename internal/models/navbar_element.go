package models

const (
	NavbarTypeLink     = "link"
	NavbarTypePage     = "page"
	NavbarTypePost     = "post"
	NavbarTypePosts    = "posts"
	NavbarTypePlugin   = "plugin"
	NavbarTypeDropdown = "dropdown"
)

// NavbarElement is an entry of the public site navigation. Dropdowns own
// children through ParentID.
type NavbarElement struct {
	BaseModel

	Name     string  `gorm:"not null" json:"name"`
	Type     string  `gorm:"size:16;not null" json:"type"`
	Value    string  `json:"value"`
	Icon     string  `json:"icon"`
	ParentID *string `gorm:"type:uuid;index" json:"parent_id"`
	Position int     `gorm:"default:0;index" json:"position"`
	NewTab   bool    `gorm:"default:false" json:"new_tab"`
	RoleID   *string `gorm:"type:uuid" json:"role_id"`

	Children []NavbarElement `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}
