package models

import (
	"time"
)

// Badge is an achievement token minted to a game's top finisher. Token
// IDs are the primary key, so they are strictly increasing across all
// games.
type Badge struct {
	ID        uint         `gorm:"primaryKey"`
	GameID    uint         `gorm:"not null;index"`
	Game      GameInstance `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Owner     string       `gorm:"type:varchar(100);not null;index"`
	TokenRef  string       `gorm:"type:varchar(100);not null"`
	MintedAt  time.Time    `gorm:"autoCreateTime"`
}

func (Badge) TableName() string {
	return "badges"
}

// BadgeMinter records which game instances hold the minter capability.
// The registry grants it at instance creation; only holders may mint.
type BadgeMinter struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"not null;uniqueIndex"`
	GrantedBy string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (BadgeMinter) TableName() string {
	return "badge_minters"
}
