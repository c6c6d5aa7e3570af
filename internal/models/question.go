package models

import (
	"time"
)

// AnswerKey is one row of the canonical answer table. Exactly
// TotalQuestions rows are written together by setQuestions or none at
// all; partial keys are unreachable. Question content itself lives
// off-chain behind the game's QuestionsRef.
type AnswerKey struct {
	ID             uint         `gorm:"primaryKey"`
	GameID         uint         `gorm:"not null;uniqueIndex:idx_game_question"`
	Game           GameInstance `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	QuestionNumber int          `gorm:"not null;uniqueIndex:idx_game_question"`
	CorrectAnswer  int          `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"autoCreateTime"`
}

func (AnswerKey) TableName() string {
	return "answer_keys"
}
