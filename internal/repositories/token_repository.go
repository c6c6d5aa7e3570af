package repositories

import (
	"fmt"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository is the stake asset ledger: balances per (asset,
// account) plus an append-only journal. Pull/Push move value between a
// player wallet and a game's escrow account and are meant to run inside
// the caller's transaction so settlement stays atomic with game state.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// PullTx moves amount from a wallet into an escrow account within tx.
// Fails with INSUFFICIENT_STAKE when the wallet cannot cover it; any
// failure leaves the ledger untouched because the caller rolls back.
func (r *TokenRepository) PullTx(tx *gorm.DB, asset, from, escrow string, amount int64, txType, description string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeTransferFailed, "pull amount must be positive")
	}

	var account models.TokenAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset, from).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return errors.New(errors.ErrCodeInsufficientStake, fmt.Sprintf("no %s balance for %s", asset, from))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load token account")
	}

	if account.Balance < amount {
		return errors.New(errors.ErrCodeInsufficientStake,
			fmt.Sprintf("insufficient stake: have %d, need %d", account.Balance, amount))
	}

	if err := tx.Model(&account).Update("balance", account.Balance-amount).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeTransferFailed, "failed to debit wallet")
	}
	if err := r.creditTx(tx, asset, escrow, amount); err != nil {
		return err
	}

	journal := &models.TokenTransaction{
		Asset:           asset,
		FromAccount:     from,
		ToAccount:       escrow,
		Amount:          amount,
		TransactionType: txType,
		Description:     description,
	}
	if err := tx.Create(journal).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to journal transfer")
	}
	return nil
}

// PushTx moves amount out of an escrow account into a wallet within tx.
func (r *TokenRepository) PushTx(tx *gorm.DB, asset, escrow, to string, amount int64, txType, description string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeTransferFailed, "push amount must be positive")
	}

	var account models.TokenAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset, escrow).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return errors.New(errors.ErrCodeTransferFailed, fmt.Sprintf("escrow %s holds no %s", escrow, asset))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load escrow account")
	}

	if account.Balance < amount {
		// The pool can never pay out more than it collected; hitting
		// this means a settlement bug, not a user error.
		return errors.New(errors.ErrCodeTransferFailed,
			fmt.Sprintf("escrow underfunded: have %d, need %d", account.Balance, amount))
	}

	if err := tx.Model(&account).Update("balance", account.Balance-amount).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeTransferFailed, "failed to debit escrow")
	}
	if err := r.creditTx(tx, asset, to, amount); err != nil {
		return err
	}

	journal := &models.TokenTransaction{
		Asset:           asset,
		FromAccount:     escrow,
		ToAccount:       to,
		Amount:          amount,
		TransactionType: txType,
		Description:     description,
	}
	if err := tx.Create(journal).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to journal transfer")
	}
	return nil
}

// Mint credits new tokens to a wallet. Used by the owner faucet and by
// seeding; games themselves never mint.
func (r *TokenRepository) Mint(asset, to string, amount int64, description string) error {
	if amount <= 0 {
		return errors.New(errors.ErrCodeValidation, "mint amount must be positive")
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.creditTx(tx, asset, to, amount); err != nil {
			return err
		}
		journal := &models.TokenTransaction{
			Asset:           asset,
			ToAccount:       to,
			Amount:          amount,
			TransactionType: models.TxTypeMint,
			Description:     description,
		}
		if err := tx.Create(journal).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to journal mint")
		}
		return nil
	})
}

// BalanceOf retrieves an account's balance; missing accounts are zero.
func (r *TokenRepository) BalanceOf(asset, account string) (int64, error) {
	var acc models.TokenAccount
	result := r.db.Where("asset = ? AND account = ?", asset, account).First(&acc)
	if result.Error == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get balance")
	}
	return acc.Balance, nil
}

// GetTransactionHistory retrieves an account's most recent journal rows.
func (r *TokenRepository) GetTransactionHistory(asset, account string, limit int) ([]models.TokenTransaction, error) {
	var transactions []models.TokenTransaction
	result := r.db.Where("asset = ? AND (from_account = ? OR to_account = ?)", asset, account, account).
		Order("created_at DESC").
		Limit(limit).
		Find(&transactions)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get transaction history")
	}
	return transactions, nil
}

// creditTx adds to a balance, creating the account row on first use.
func (r *TokenRepository) creditTx(tx *gorm.DB, asset, account string, amount int64) error {
	var acc models.TokenAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ? AND account = ?", asset, account).
		First(&acc).Error
	if err == gorm.ErrRecordNotFound {
		acc = models.TokenAccount{Asset: asset, Account: account, Balance: amount}
		if err := tx.Create(&acc).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeTransferFailed, "failed to create token account")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load token account")
	}
	if err := tx.Model(&acc).Update("balance", acc.Balance+amount).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeTransferFailed, "failed to credit account")
	}
	return nil
}
