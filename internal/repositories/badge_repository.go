package repositories

import (
	"fmt"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"gorm.io/gorm"
)

// BadgeRepository issues achievement badges. Minting is gated: only
// game instances holding the minter capability (granted by the registry
// at creation) may mint.
type BadgeRepository struct {
	db *gorm.DB
}

func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// GrantMinterTx gives a game instance the minter capability within tx.
// Granting twice is a no-op.
func (r *BadgeRepository) GrantMinterTx(tx *gorm.DB, gameID uint, grantedBy string) error {
	var existing models.BadgeMinter
	err := tx.Where("game_id = ?", gameID).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to check minter capability")
	}
	minter := &models.BadgeMinter{GameID: gameID, GrantedBy: grantedBy}
	if err := tx.Create(minter).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to grant minter capability")
	}
	return nil
}

// MintTx mints a badge to an account on behalf of a game instance
// within tx. Fails with NOT_A_MINTER when the instance was never
// granted the capability.
func (r *BadgeRepository) MintTx(tx *gorm.DB, gameID uint, to, tokenRef string) (uint, error) {
	var minter models.BadgeMinter
	err := tx.Where("game_id = ?", gameID).First(&minter).Error
	if err == gorm.ErrRecordNotFound {
		return 0, errors.New(errors.ErrCodeNotAMinter, fmt.Sprintf("game %d holds no minter capability", gameID))
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check minter capability")
	}

	badge := &models.Badge{
		GameID:   gameID,
		Owner:    to,
		TokenRef: tokenRef,
	}
	if err := tx.Create(badge).Error; err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to mint badge")
	}
	return badge.ID, nil
}

// GetBadgesByOwner lists badges held by an account.
func (r *BadgeRepository) GetBadgesByOwner(owner string) ([]models.Badge, error) {
	var badges []models.Badge
	result := r.db.Where("owner = ?", owner).Order("minted_at DESC").Find(&badges)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list badges")
	}
	return badges, nil
}
