package repo

import "gorm.io/gorm"

// GormRepo owns all table access. Handlers never touch *gorm.DB directly;
// the handle is injected here once at startup.
type GormRepo struct {
	DB *gorm.DB
}
