package models

import (
	"time"
)

// GameEvent is the append-only event stream external indexers read.
// Payload is a small JSON object specific to the event type.
type GameEvent struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"not null;index"`
	Type      string    `gorm:"type:varchar(50);not null;index"`
	Account   string    `gorm:"type:varchar(100);index"`
	Payload   string    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (GameEvent) TableName() string {
	return "game_events"
}

// Event type constants
const (
	EventGameCreated      = "game_created"
	EventStakeAssetSet    = "stake_asset_updated"
	EventPlayerJoined     = "player_joined"
	EventQuestionsStored  = "questions_stored"
	EventGameStarted      = "game_started"
	EventAnswerSubmitted  = "answer_submitted"
	EventPlayerEliminated = "player_eliminated"
	EventGameEnded        = "game_ended"
	EventPrizePaid        = "prize_paid"
	EventBadgeMinted      = "badge_minted"
)
