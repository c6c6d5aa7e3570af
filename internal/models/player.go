package models

import (
	"time"
)

// Player is one participant's record inside a single game instance.
// Created on join, mutated only until elimination; the elimination flag
// is never reset.
type Player struct {
	ID                uint         `gorm:"primaryKey"`
	GameID            uint         `gorm:"not null;uniqueIndex:idx_game_account"`
	Game              GameInstance `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Account           string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_game_account"`
	Basename          string       `gorm:"type:varchar(100);not null"`
	Handle            string       `gorm:"type:varchar(100);not null"`
	StakePaid         int64        `gorm:"not null"`
	JoinOrder         int          `gorm:"not null"`
	Progress          int          `gorm:"default:0"`
	Score             int          `gorm:"default:0"`
	Eliminated        bool         `gorm:"default:false;index"`
	EliminationReason string       `gorm:"type:varchar(30)"`
	LastAnswerAt      *time.Time
	ReferredBy        string    `gorm:"type:varchar(100)"`
	Referrals         int       `gorm:"default:0"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (Player) TableName() string {
	return "players"
}

// Elimination reasons
const (
	EliminationIncorrectAnswer = "incorrect_answer"
	EliminationTimeLimit       = "time_limit"
)

// Finished reports whether the player has answered every question.
func (p *Player) Finished() bool {
	return p.Progress >= TotalQuestions
}

// Active reports whether the player can still submit answers.
func (p *Player) Active() bool {
	return !p.Eliminated
}

// PlayerAnswer journals every accepted submission: which question, what
// was answered, whether it was right, and how long the player took.
// This is the per-question record the original kept in playerAnswers /
// playerQuestionTimes and also serves as the answer event stream.
type PlayerAnswer struct {
	ID             uint         `gorm:"primaryKey"`
	GameID         uint         `gorm:"not null;index"`
	Game           GameInstance `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Account        string       `gorm:"type:varchar(100);not null;index"`
	QuestionNumber int          `gorm:"not null"`
	Answer         int          `gorm:"not null"`
	Correct        bool         `gorm:"default:false"`
	ElapsedMs      int64        `gorm:"default:0"`
	AnsweredAt     time.Time    `gorm:"autoCreateTime"`
}

func (PlayerAnswer) TableName() string {
	return "player_answers"
}

// Winner is one leaderboard entry, appended in completion order as
// players finish all questions. Rank is 1-based.
type Winner struct {
	ID         uint         `gorm:"primaryKey"`
	GameID     uint         `gorm:"not null;uniqueIndex:idx_game_rank"`
	Game       GameInstance `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Account    string       `gorm:"type:varchar(100);not null"`
	Rank       int          `gorm:"not null;uniqueIndex:idx_game_rank"`
	Score      int          `gorm:"not null"`
	FinishedAt time.Time    `gorm:"not null"`
	Prize      int64        `gorm:"default:0"`
}

func (Winner) TableName() string {
	return "winners"
}
