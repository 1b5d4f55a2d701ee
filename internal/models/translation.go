package models

// Translation overrides a single translation key for a locale.
type Translation struct {
	BaseModel

	Locale string `gorm:"size:16;not null;uniqueIndex:idx_translation_locale_key" json:"locale"`
	Group  string `gorm:"size:64;not null;default:'messages';uniqueIndex:idx_translation_locale_key" json:"group"`
	Key    string `gorm:"size:191;not null;uniqueIndex:idx_translation_locale_key" json:"key"`
	Value  string `gorm:"type:text" json:"value"`
}
