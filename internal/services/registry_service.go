package services

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/internal/repositories"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"github.com/basequiz/quiz_arena/pkg/logger"
)

// RegistryService is the control plane: it owns the creator
// authorization table, the stake asset binding, and instance creation.
// Instances it creates receive the badge minter capability so they can
// award the winner's badge at settlement.
type RegistryService struct {
	db       *gorm.DB
	registry *repositories.RegistryRepository
	games    *repositories.GameRepository
	badges   *repositories.BadgeRepository
	log      *zap.SugaredLogger
}

func NewRegistryService(db *gorm.DB, registry *repositories.RegistryRepository, games *repositories.GameRepository, badges *repositories.BadgeRepository) *RegistryService {
	return &RegistryService{
		db:       db,
		registry: registry,
		games:    games,
		badges:   badges,
		log:      logger.Named("registry"),
	}
}

// Authorize grants an account the right to create instances. Owner
// only. Authorizing an already-authorized account succeeds unchanged.
func (s *RegistryService) Authorize(caller, account string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if account == "" {
		return errors.New(errors.ErrCodeInvalidAddress, "account must not be empty")
	}
	if err := s.registry.Authorize(account, caller); err != nil {
		return err
	}
	s.log.Infow("creator authorized", "account", account, "by", caller)
	return nil
}

// Revoke removes an account's creation right. Owner only. Revoking an
// account that was never authorized succeeds unchanged.
func (s *RegistryService) Revoke(caller, account string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if account == "" {
		return errors.New(errors.ErrCodeInvalidAddress, "account must not be empty")
	}
	if err := s.registry.Revoke(account); err != nil {
		return err
	}
	s.log.Infow("creator revoked", "account", account, "by", caller)
	return nil
}

// IsAuthorized reports whether an account may create instances. The
// owner is always authorized.
func (s *RegistryService) IsAuthorized(account string) (bool, error) {
	settings, err := s.registry.GetSettings()
	if err != nil {
		return false, err
	}
	if account == settings.Owner {
		return true, nil
	}
	return s.registry.IsAuthorized(account)
}

// UpdateStakeAsset rebinds the asset future instances stake in.
// Existing instances keep the asset they were created with.
func (s *RegistryService) UpdateStakeAsset(caller, asset string) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if asset == "" {
		return errors.New(errors.ErrCodeInvalidAddress, "asset must not be empty")
	}
	if err := s.registry.UpdateStakeAsset(asset); err != nil {
		return err
	}
	// Registry-scoped events carry game id 0.
	if err := s.games.RecordEventTx(s.db, 0, models.EventStakeAssetSet, caller, map[string]interface{}{
		"asset": asset,
	}); err != nil {
		return err
	}
	s.log.Infow("stake asset updated", "asset", asset, "by", caller)
	return nil
}

// CreateInstance registers a new game bound to the current stake asset
// and grants it the badge minter capability. Caller must be the owner
// or an authorized creator.
func (s *RegistryService) CreateInstance(caller, basename, metadataRef string, stakeAmount int64, playerLimit int) (*models.GameInstance, error) {
	authorized, err := s.IsAuthorized(caller)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, errors.New(errors.ErrCodeUnauthorized, "caller may not create game instances")
	}
	if basename == "" {
		return nil, errors.New(errors.ErrCodeInvalidBasename, "basename must not be empty")
	}
	if stakeAmount < models.MinStake || stakeAmount > models.MaxStake {
		return nil, errors.New(errors.ErrCodeInvalidGameParameters,
			fmt.Sprintf("stake amount %d out of bounds [%d, %d]", stakeAmount, models.MinStake, models.MaxStake))
	}
	if playerLimit < models.MinPlayers || playerLimit > models.MaxPlayers {
		return nil, errors.New(errors.ErrCodeInvalidGameParameters,
			fmt.Sprintf("player limit %d out of bounds [%d, %d]", playerLimit, models.MinPlayers, models.MaxPlayers))
	}

	settings, err := s.registry.GetSettings()
	if err != nil {
		return nil, err
	}

	game := &models.GameInstance{
		Creator:     caller,
		Basename:    basename,
		MetadataRef: metadataRef,
		StakeAsset:  settings.StakeAsset,
		StakeAmount: stakeAmount,
		PlayerLimit: playerLimit,
		State:       models.GameStateOpen,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.games.CreateInstanceTx(tx, game); err != nil {
			return err
		}
		if err := s.badges.GrantMinterTx(tx, game.ID, settings.Owner); err != nil {
			return err
		}
		return s.games.RecordEventTx(tx, game.ID, models.EventGameCreated, caller, map[string]interface{}{
			"basename":     basename,
			"stake_asset":  game.StakeAsset,
			"stake_amount": stakeAmount,
			"player_limit": playerLimit,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("instance created", "game_id", game.ID, "creator", caller, "stake", stakeAmount)
	return game, nil
}

// ListInstances returns the whole catalogue, oldest first.
func (s *RegistryService) ListInstances() ([]models.GameInstance, error) {
	return s.games.ListInstances()
}

// ListOpenInstances returns joinable games.
func (s *RegistryService) ListOpenInstances() ([]models.GameInstance, error) {
	return s.games.ListOpenInstances()
}

// GetInstance retrieves one catalogue entry.
func (s *RegistryService) GetInstance(gameID uint) (*models.GameInstance, error) {
	return s.games.GetInstance(gameID)
}

// GetSettings returns the registry's owner and current stake asset.
func (s *RegistryService) GetSettings() (*models.RegistrySetting, error) {
	return s.registry.GetSettings()
}

func (s *RegistryService) requireOwner(caller string) error {
	settings, err := s.registry.GetSettings()
	if err != nil {
		return err
	}
	if caller != settings.Owner {
		return errors.New(errors.ErrCodeUnauthorized, "owner only")
	}
	return nil
}
