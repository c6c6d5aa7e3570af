package models

import (
	"time"
)

// TokenAccount is one balance of the stake asset ledger, keyed by
// (asset, account). Game escrow accounts live in the same table as
// player wallets.
type TokenAccount struct {
	ID        uint      `gorm:"primaryKey"`
	Asset     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_asset_account"`
	Account   string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_asset_account"`
	Balance   int64     `gorm:"default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TokenAccount) TableName() string {
	return "token_accounts"
}

// TokenTransaction is the append-only journal of every ledger movement.
type TokenTransaction struct {
	ID              uint      `gorm:"primaryKey"`
	Asset           string    `gorm:"type:varchar(50);not null;index"`
	FromAccount     string    `gorm:"type:varchar(100);index"`
	ToAccount       string    `gorm:"type:varchar(100);index"`
	Amount          int64     `gorm:"not null"`
	TransactionType string    `gorm:"type:varchar(50);not null;index"`
	Description     string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index"`
}

func (TokenTransaction) TableName() string {
	return "token_transactions"
}

// Transaction type constants
const (
	TxTypeStake  = "stake"
	TxTypePrize  = "prize"
	TxTypeRefund = "refund"
	TxTypeMint   = "mint"
)
