package repositories

import (
	"encoding/json"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRepository persists game instances and everything scoped to one
// game: players, answer keys, leaderboard, events.
type GameRepository struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{db: db}
}

// CreateInstanceTx records a new instance in the catalogue within tx.
func (r *GameRepository) CreateInstanceTx(tx *gorm.DB, game *models.GameInstance) error {
	if err := tx.Create(game).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create game instance")
	}
	return nil
}

// GetInstance retrieves one catalogue entry.
func (r *GameRepository) GetInstance(gameID uint) (*models.GameInstance, error) {
	var game models.GameInstance
	result := r.db.First(&game, gameID)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeInvalidInstance, "unknown game instance")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get game instance")
	}
	return &game, nil
}

// ListInstances returns the whole catalogue, oldest first.
func (r *GameRepository) ListInstances() ([]models.GameInstance, error) {
	var games []models.GameInstance
	result := r.db.Order("id ASC").Find(&games)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list game instances")
	}
	return games, nil
}

// ListOpenInstances returns joinable games, for the lobby view.
func (r *GameRepository) ListOpenInstances() ([]models.GameInstance, error) {
	var games []models.GameInstance
	result := r.db.Where("state = ?", models.GameStateOpen).Order("id ASC").Find(&games)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list open games")
	}
	return games, nil
}

// ListInProgressInstances returns running games, for the timeout
// sweeper.
func (r *GameRepository) ListInProgressInstances() ([]models.GameInstance, error) {
	var games []models.GameInstance
	result := r.db.Where("state = ?", models.GameStateInProgress).Order("id ASC").Find(&games)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list running games")
	}
	return games, nil
}

// LockInstanceTx loads a game row FOR UPDATE inside tx. Every mutating
// game operation goes through this lock, which serializes all writers
// of one instance.
func (r *GameRepository) LockInstanceTx(tx *gorm.DB, gameID uint) (*models.GameInstance, error) {
	var game models.GameInstance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&game, gameID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeInvalidInstance, "unknown game instance")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to lock game instance")
	}
	return &game, nil
}

// GetPlayersTx loads a game's players in join order inside tx.
func (r *GameRepository) GetPlayersTx(tx *gorm.DB, gameID uint) ([]*models.Player, error) {
	var players []*models.Player
	err := tx.Where("game_id = ?", gameID).Order("join_order ASC").Find(&players).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load players")
	}
	return players, nil
}

// GetPlayers loads a game's players in join order (read-only).
func (r *GameRepository) GetPlayers(gameID uint) ([]*models.Player, error) {
	return r.GetPlayersTx(r.db, gameID)
}

// GetPlayer retrieves one player record, or nil when absent.
func (r *GameRepository) GetPlayer(gameID uint, account string) (*models.Player, error) {
	var player models.Player
	err := r.db.Where("game_id = ? AND account = ?", gameID, account).First(&player).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get player")
	}
	return &player, nil
}

// GetAnswerKeyTx loads the full answer table keyed by question number.
// An empty map means questions were never set.
func (r *GameRepository) GetAnswerKeyTx(tx *gorm.DB, gameID uint) (map[int]int, error) {
	var rows []models.AnswerKey
	err := tx.Where("game_id = ?", gameID).Order("question_number ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load answer key")
	}
	key := make(map[int]int, len(rows))
	for _, row := range rows {
		key[row.QuestionNumber] = row.CorrectAnswer
	}
	return key, nil
}

// GetAnswerKey is the read-only variant; answers are public once set.
func (r *GameRepository) GetAnswerKey(gameID uint) (map[int]int, error) {
	return r.GetAnswerKeyTx(r.db, gameID)
}

// StoreAnswerKeyTx writes the full answer table in one shot.
func (r *GameRepository) StoreAnswerKeyTx(tx *gorm.DB, gameID uint, answers []int) error {
	rows := make([]models.AnswerKey, 0, len(answers))
	for i, answer := range answers {
		rows = append(rows, models.AnswerKey{
			GameID:         gameID,
			QuestionNumber: i + 1,
			CorrectAnswer:  answer,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to store answer key")
	}
	return nil
}

// GetWinnersTx loads the leaderboard in completion order inside tx.
func (r *GameRepository) GetWinnersTx(tx *gorm.DB, gameID uint) ([]*models.Winner, error) {
	var winners []*models.Winner
	err := tx.Where("game_id = ?", gameID).Order("rank ASC").Find(&winners).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load leaderboard")
	}
	return winners, nil
}

// GetWinners loads the leaderboard (read-only).
func (r *GameRepository) GetWinners(gameID uint) ([]*models.Winner, error) {
	return r.GetWinnersTx(r.db, gameID)
}

// RecordEventTx appends one event row within tx. Payload values must be
// JSON-encodable.
func (r *GameRepository) RecordEventTx(tx *gorm.DB, gameID uint, eventType, account string, payload map[string]interface{}) error {
	encoded := "{}"
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode event payload")
		}
		encoded = string(data)
	}
	event := &models.GameEvent{
		GameID:  gameID,
		Type:    eventType,
		Account: account,
		Payload: encoded,
	}
	if err := tx.Create(event).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to record event")
	}
	return nil
}

// GetEvents lists a game's events oldest first, for indexers and the
// status view.
func (r *GameRepository) GetEvents(gameID uint, limit int) ([]models.GameEvent, error) {
	var events []models.GameEvent
	result := r.db.Where("game_id = ?", gameID).Order("id ASC").Limit(limit).Find(&events)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to list events")
	}
	return events, nil
}
