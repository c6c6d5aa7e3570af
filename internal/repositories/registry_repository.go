package repositories

import (
	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"gorm.io/gorm"
)

// RegistryRepository persists the registry's authorization table and
// its single settings row (owner + current stake asset binding).
type RegistryRepository struct {
	db *gorm.DB
}

func NewRegistryRepository(db *gorm.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// EnsureSettings creates the settings row on first boot. The owner and
// initial stake asset come from configuration and are never changed by
// this call once the row exists.
func (r *RegistryRepository) EnsureSettings(owner, stakeAsset string) (*models.RegistrySetting, error) {
	var settings models.RegistrySetting
	err := r.db.First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load registry settings")
	}

	settings = models.RegistrySetting{Owner: owner, StakeAsset: stakeAsset}
	if err := r.db.Create(&settings).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create registry settings")
	}
	return &settings, nil
}

// GetSettings retrieves the registry settings row.
func (r *RegistryRepository) GetSettings() (*models.RegistrySetting, error) {
	var settings models.RegistrySetting
	if err := r.db.First(&settings).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "registry settings missing")
	}
	return &settings, nil
}

// UpdateStakeAsset rebinds the asset used by future instances.
func (r *RegistryRepository) UpdateStakeAsset(asset string) error {
	settings, err := r.GetSettings()
	if err != nil {
		return err
	}
	if err := r.db.Model(settings).Update("stake_asset", asset).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update stake asset")
	}
	return nil
}

// Authorize adds a principal to the creator table. Re-authorizing an
// already-authorized principal succeeds without a second row.
func (r *RegistryRepository) Authorize(account, grantedBy string) error {
	var existing models.AuthorizedCreator
	err := r.db.Where("account = ?", account).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to check authorization")
	}
	creator := &models.AuthorizedCreator{Account: account, GrantedBy: grantedBy}
	if err := r.db.Create(creator).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to authorize creator")
	}
	return nil
}

// Revoke removes a principal from the creator table. Revoking an
// absent principal succeeds.
func (r *RegistryRepository) Revoke(account string) error {
	result := r.db.Where("account = ?", account).Delete(&models.AuthorizedCreator{})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to revoke creator")
	}
	return nil
}

// IsAuthorized reports whether a principal may create instances.
func (r *RegistryRepository) IsAuthorized(account string) (bool, error) {
	var count int64
	result := r.db.Model(&models.AuthorizedCreator{}).Where("account = ?", account).Count(&count)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check authorization")
	}
	return count > 0, nil
}
