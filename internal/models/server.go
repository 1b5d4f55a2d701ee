package models

const (
	ServerTypeMinecraft = "minecraft"
	ServerTypeSteam     = "steam"
	ServerTypeFiveM     = "fivem"
	ServerTypeTCP       = "tcp"
)

// Server is a game server displayed in status widgets.
type Server struct {
	BaseModel

	Name      string `gorm:"not null" json:"name"`
	Address   string `gorm:"not null" json:"address"`
	Port      int    `gorm:"not null" json:"port"`
	Type      string `gorm:"size:32;default:'tcp'" json:"type"`
	JoinURL   string `json:"join_url"`
	Position  int    `gorm:"default:0" json:"position"`
	IsDefault bool   `gorm:"default:false" json:"is_default"`
	IsHidden  bool   `gorm:"default:false" json:"is_hidden"`
}
