package models

import (
	"time"
)

// RegistrySetting is the registry's single mutable row: who owns it and
// which stake asset newly created instances are bound to. Existing
// instances keep the asset they were created with.
type RegistrySetting struct {
	ID         uint      `gorm:"primaryKey"`
	Owner      string    `gorm:"type:varchar(100);not null"`
	StakeAsset string    `gorm:"type:varchar(50);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (RegistrySetting) TableName() string {
	return "registry_settings"
}

// AuthorizedCreator is one principal allowed to create game instances.
type AuthorizedCreator struct {
	ID        uint      `gorm:"primaryKey"`
	Account   string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	GrantedBy string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuthorizedCreator) TableName() string {
	return "authorized_creators"
}
