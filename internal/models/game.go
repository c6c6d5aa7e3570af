package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GameInstance is one staked elimination quiz: its immutable parameters,
// lifecycle state, and escrowed prize pool. Rows are never deleted; the
// table doubles as the registry's catalogue.
type GameInstance struct {
	ID           uint   `gorm:"primaryKey"`
	Creator      string `gorm:"type:varchar(100);not null;index"`
	Basename     string `gorm:"type:varchar(100);not null"`
	MetadataRef  string `gorm:"type:varchar(100);not null"`
	StakeAsset   string `gorm:"type:varchar(50);not null"`
	StakeAmount  int64  `gorm:"not null"`
	PlayerLimit  int    `gorm:"not null"`
	State        string `gorm:"type:varchar(20);default:'open';index"`
	QuestionsRef string `gorm:"type:varchar(100)"`
	QuestionsSet bool   `gorm:"default:false"`
	PrizePool    int64  `gorm:"default:0"`
	StartedAt    *time.Time
	EndedAt      *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (GameInstance) TableName() string {
	return "game_instances"
}

// Game lifecycle states. Transitions are one way:
// open -> in_progress -> ended.
const (
	GameStateOpen       = "open"
	GameStateInProgress = "in_progress"
	GameStateEnded      = "ended"
)

// Game rules, fixed for every instance.
const (
	TotalQuestions       = 15
	QuestionsPerStage    = 5
	QuestionTimerSeconds = 30
	MaxWinners           = 3
	MinAnswerCode        = 1
	MaxAnswerCode        = 3
)

// Token amounts are 3-decimal fixed point: 1 token = 1000 base units.
const UnitsPerToken = 1000

// Global bounds on game parameters, enforced by the registry and
// re-checked on every instance write.
const (
	MinStake   = 10 * UnitsPerToken
	MaxStake   = 100 * UnitsPerToken
	MinPlayers = 2
	MaxPlayers = 10
)

// stageRefundPercent maps the stage a player was in when eliminated
// (progress / QuestionsPerStage) to the percentage of their stake
// refunded at settlement.
var stageRefundPercent = [...]int64{0, 30, 70, 100}

// RefundPercent returns the stake percentage refunded to a player
// eliminated with the given progress pointer.
func RefundPercent(progress int) int64 {
	stage := progress / QuestionsPerStage
	if stage >= len(stageRefundPercent) {
		stage = len(stageRefundPercent) - 1
	}
	return stageRefundPercent[stage]
}

// ValidAnswerCode reports whether an answer code lies in the closed
// answer domain.
func ValidAnswerCode(code int) bool {
	return code >= MinAnswerCode && code <= MaxAnswerCode
}

// QuestionDeadline is how long a player may sit on their current
// question before anyone can force their elimination.
func QuestionDeadline() time.Duration {
	return QuestionTimerSeconds * time.Second
}

// EscrowAccount is the ledger account holding an instance's stake pool.
func (g *GameInstance) EscrowAccount() string {
	return fmt.Sprintf("game:%d", g.ID)
}

func (g *GameInstance) IsOpen() bool       { return g.State == GameStateOpen }
func (g *GameInstance) IsInProgress() bool { return g.State == GameStateInProgress }
func (g *GameInstance) IsEnded() bool      { return g.State == GameStateEnded }

// BeforeSave validates the instance invariants on every write.
func (g *GameInstance) BeforeSave(tx *gorm.DB) error {
	if g.Creator == "" {
		return fmt.Errorf("creator is required")
	}
	if g.Basename == "" {
		return fmt.Errorf("basename is required")
	}
	if g.StakeAsset == "" {
		return fmt.Errorf("stake asset is required")
	}
	if g.StakeAmount < MinStake || g.StakeAmount > MaxStake {
		return fmt.Errorf("stake amount %d out of bounds [%d, %d]", g.StakeAmount, MinStake, MaxStake)
	}
	if g.PlayerLimit < MinPlayers || g.PlayerLimit > MaxPlayers {
		return fmt.Errorf("player limit %d out of bounds [%d, %d]", g.PlayerLimit, MinPlayers, MaxPlayers)
	}
	switch g.State {
	case GameStateOpen, GameStateInProgress, GameStateEnded:
	default:
		return fmt.Errorf("invalid game state: %s", g.State)
	}
	return nil
}
