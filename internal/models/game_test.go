package models

import (
	"testing"
	"time"
)

func TestRefundPercent(t *testing.T) {
	tests := []struct {
		name     string
		progress int
		want     int64
	}{
		{"fresh player", 0, 0},
		{"end of first stage", 4, 0},
		{"start of second stage", 5, 30},
		{"end of second stage", 9, 30},
		{"start of third stage", 10, 70},
		{"end of third stage", 14, 70},
		{"all questions answered", 15, 100},
		{"progress beyond the last question", 20, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefundPercent(tt.progress); got != tt.want {
				t.Errorf("RefundPercent(%d) = %d, want %d", tt.progress, got, tt.want)
			}
		})
	}
}

func TestValidAnswerCode(t *testing.T) {
	for code := -1; code <= 5; code++ {
		want := code >= MinAnswerCode && code <= MaxAnswerCode
		if got := ValidAnswerCode(code); got != want {
			t.Errorf("ValidAnswerCode(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestEscrowAccount(t *testing.T) {
	g := &GameInstance{ID: 42}
	if got := g.EscrowAccount(); got != "game:42" {
		t.Errorf("EscrowAccount() = %q, want %q", got, "game:42")
	}
}

func TestGameStateHelpers(t *testing.T) {
	g := &GameInstance{State: GameStateOpen}
	if !g.IsOpen() || g.IsInProgress() || g.IsEnded() {
		t.Error("open state helpers wrong")
	}
	g.State = GameStateInProgress
	if g.IsOpen() || !g.IsInProgress() || g.IsEnded() {
		t.Error("in_progress state helpers wrong")
	}
	g.State = GameStateEnded
	if g.IsOpen() || g.IsInProgress() || !g.IsEnded() {
		t.Error("ended state helpers wrong")
	}
}

func TestPlayerFinished(t *testing.T) {
	p := &Player{Progress: TotalQuestions - 1}
	if p.Finished() {
		t.Error("player one short of the end reported finished")
	}
	p.Progress = TotalQuestions
	if !p.Finished() {
		t.Error("player at the end not reported finished")
	}
}

func TestBeforeSaveValidation(t *testing.T) {
	valid := func() *GameInstance {
		return &GameInstance{
			Creator:     "tg:1",
			Basename:    "arena.base.eth",
			StakeAsset:  "QUIZ",
			StakeAmount: MinStake,
			PlayerLimit: MinPlayers,
			State:       GameStateOpen,
		}
	}

	if err := valid().BeforeSave(nil); err != nil {
		t.Fatalf("valid instance rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*GameInstance)
	}{
		{"missing creator", func(g *GameInstance) { g.Creator = "" }},
		{"missing basename", func(g *GameInstance) { g.Basename = "" }},
		{"missing asset", func(g *GameInstance) { g.StakeAsset = "" }},
		{"stake too low", func(g *GameInstance) { g.StakeAmount = MinStake - 1 }},
		{"stake too high", func(g *GameInstance) { g.StakeAmount = MaxStake + 1 }},
		{"limit too low", func(g *GameInstance) { g.PlayerLimit = MinPlayers - 1 }},
		{"limit too high", func(g *GameInstance) { g.PlayerLimit = MaxPlayers + 1 }},
		{"bogus state", func(g *GameInstance) { g.State = "paused" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid()
			tt.mutate(g)
			if err := g.BeforeSave(nil); err == nil {
				t.Error("BeforeSave() expected error, got nil")
			}
		})
	}
}

func TestQuestionDeadline(t *testing.T) {
	if got := QuestionDeadline(); got != QuestionTimerSeconds*time.Second {
		t.Errorf("QuestionDeadline() = %v, want %v", got, QuestionTimerSeconds*time.Second)
	}
}
