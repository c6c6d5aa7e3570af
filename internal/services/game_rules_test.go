package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestState builds an open game with n joined players named
// player1..playerN, each staking the minimum.
func newTestState(t *testing.T, n int) *matchState {
	t.Helper()
	s := &matchState{
		Game: &models.GameInstance{
			ID:          1,
			Creator:     "creator",
			Basename:    "arena.base.eth",
			StakeAsset:  "QUIZ",
			StakeAmount: models.MinStake,
			PlayerLimit: models.MaxPlayers,
			State:       models.GameStateOpen,
		},
	}
	for i := 1; i <= n; i++ {
		account := fmt.Sprintf("player%d", i)
		if _, err := applyJoin(s, account, account+".base.eth", "@"+account, ""); err != nil {
			t.Fatalf("join %s: %v", account, err)
		}
	}
	return s
}

// allOnes is an answer key where every correct answer is 1.
func allOnes() []int {
	answers := make([]int, models.TotalQuestions)
	for i := range answers {
		answers[i] = 1
	}
	return answers
}

// startGame stores the key and starts the game at testStart.
func startGame(t *testing.T, s *matchState) {
	t.Helper()
	if err := applySetQuestions(s, "creator", "ipfs://QmQuestions", allOnes()); err != nil {
		t.Fatalf("set questions: %v", err)
	}
	if err := applyStart(s, "creator", testStart); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// answerAll submits count correct answers for account, one second
// apart, starting one second after the player's current clock.
func answerAll(t *testing.T, s *matchState, account string, count int) *answerOutcome {
	t.Helper()
	var last *answerOutcome
	for i := 0; i < count; i++ {
		p := s.player(account)
		now := p.LastAnswerAt.Add(time.Second)
		out, err := applyAnswer(s, account, 1, now)
		if err != nil {
			t.Fatalf("answer %d for %s: %v", i+1, account, err)
		}
		last = out
	}
	return last
}

func TestJoinValidation(t *testing.T) {
	t.Run("duplicate join rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		if _, err := applyJoin(s, "player1", "p1.base.eth", "@p1", ""); !errors.Is(err, errors.ErrCodeAlreadyJoined) {
			t.Errorf("expected ALREADY_JOINED, got %v", err)
		}
	})

	t.Run("player limit enforced", func(t *testing.T) {
		s := newTestState(t, 2)
		s.Game.PlayerLimit = 2
		if _, err := applyJoin(s, "player3", "p3.base.eth", "@p3", ""); !errors.Is(err, errors.ErrCodePlayerLimitReached) {
			t.Errorf("expected PLAYER_LIMIT_REACHED, got %v", err)
		}
	})

	t.Run("empty basename rejected", func(t *testing.T) {
		s := newTestState(t, 1)
		if _, err := applyJoin(s, "player2", "", "@p2", ""); !errors.Is(err, errors.ErrCodeInvalidBasename) {
			t.Errorf("expected INVALID_BASENAME, got %v", err)
		}
	})

	t.Run("empty handle rejected", func(t *testing.T) {
		s := newTestState(t, 1)
		if _, err := applyJoin(s, "player2", "p2.base.eth", "", ""); !errors.Is(err, errors.ErrCodeEmptyHandle) {
			t.Errorf("expected EMPTY_HANDLE, got %v", err)
		}
	})

	t.Run("join after start rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		if _, err := applyJoin(s, "player3", "p3.base.eth", "@p3", ""); !errors.Is(err, errors.ErrCodeGameNotOpen) {
			t.Errorf("expected GAME_NOT_OPEN, got %v", err)
		}
	})

	t.Run("stake accrues to the pool", func(t *testing.T) {
		s := newTestState(t, 3)
		if want := int64(3 * models.MinStake); s.Game.PrizePool != want {
			t.Errorf("prize pool = %d, want %d", s.Game.PrizePool, want)
		}
	})

	t.Run("referral counted once", func(t *testing.T) {
		s := newTestState(t, 1)
		if _, err := applyJoin(s, "player2", "p2.base.eth", "@p2", "player1"); err != nil {
			t.Fatalf("join: %v", err)
		}
		if got := s.player("player1").Referrals; got != 1 {
			t.Errorf("referrals = %d, want 1", got)
		}
		// Self-referrals are dropped silently.
		p3, err := applyJoin(s, "player3", "p3.base.eth", "@p3", "player3")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if p3.ReferredBy != "" {
			t.Errorf("self-referral recorded: %q", p3.ReferredBy)
		}
	})
}

func TestSetQuestions(t *testing.T) {
	tests := []struct {
		name     string
		caller   string
		ref      string
		answers  []int
		wantCode string
	}{
		{"creator stores full key", "creator", "ipfs://Qm", allOnes(), ""},
		{"non-creator rejected", "player1", "ipfs://Qm", allOnes(), errors.ErrCodeUnauthorized},
		{"short key rejected", "creator", "ipfs://Qm", allOnes()[:10], errors.ErrCodeInvalidQuestions},
		{"answer outside domain rejected", "creator", "ipfs://Qm", append(allOnes()[:14], 4), errors.ErrCodeInvalidQuestions},
		{"empty ref rejected", "creator", "", allOnes(), errors.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, 2)
			err := applySetQuestions(s, tt.caller, tt.ref, tt.answers)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !s.Game.QuestionsSet || len(s.Answers) != models.TotalQuestions {
					t.Errorf("key not stored: set=%v len=%d", s.Game.QuestionsSet, len(s.Answers))
				}
				return
			}
			if !errors.Is(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}

	t.Run("single shot", func(t *testing.T) {
		s := newTestState(t, 2)
		if err := applySetQuestions(s, "creator", "ipfs://Qm1", allOnes()); err != nil {
			t.Fatalf("first set: %v", err)
		}
		err := applySetQuestions(s, "creator", "ipfs://Qm2", allOnes())
		if !errors.Is(err, errors.ErrCodeQuestionsAlreadySet) {
			t.Errorf("expected QUESTIONS_ALREADY_SET, got %v", err)
		}
		if s.Game.QuestionsRef != "ipfs://Qm1" {
			t.Errorf("ref rewritten to %q", s.Game.QuestionsRef)
		}
	})
}

func TestStartValidation(t *testing.T) {
	t.Run("questions required", func(t *testing.T) {
		s := newTestState(t, 2)
		if err := applyStart(s, "creator", testStart); !errors.Is(err, errors.ErrCodeQuestionsNotSet) {
			t.Errorf("expected QUESTIONS_NOT_SET, got %v", err)
		}
	})

	t.Run("minimum players required", func(t *testing.T) {
		s := newTestState(t, 1)
		if err := applySetQuestions(s, "creator", "ipfs://Qm", allOnes()); err != nil {
			t.Fatalf("set questions: %v", err)
		}
		if err := applyStart(s, "creator", testStart); !errors.Is(err, errors.ErrCodeNotEnoughPlayers) {
			t.Errorf("expected NOT_ENOUGH_PLAYERS, got %v", err)
		}
	})

	t.Run("creator only", func(t *testing.T) {
		s := newTestState(t, 2)
		if err := applySetQuestions(s, "creator", "ipfs://Qm", allOnes()); err != nil {
			t.Fatalf("set questions: %v", err)
		}
		if err := applyStart(s, "player1", testStart); !errors.Is(err, errors.ErrCodeUnauthorized) {
			t.Errorf("expected UNAUTHORIZED, got %v", err)
		}
	})

	t.Run("start arms every answer clock", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		for _, p := range s.Players {
			if p.LastAnswerAt == nil || !p.LastAnswerAt.Equal(testStart) {
				t.Errorf("%s clock = %v, want %v", p.Account, p.LastAnswerAt, testStart)
			}
		}
	})
}

func TestAnswerEvaluation(t *testing.T) {
	t.Run("correct answer advances", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		out, err := applyAnswer(s, "player1", 1, testStart.Add(5*time.Second))
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if !out.Correct || out.QuestionNumber != 1 {
			t.Errorf("outcome = %+v", out)
		}
		p := s.player("player1")
		if p.Progress != 1 || p.Score != 1 {
			t.Errorf("progress=%d score=%d, want 1/1", p.Progress, p.Score)
		}
		if out.ElapsedMs != 5000 {
			t.Errorf("elapsed = %dms, want 5000", out.ElapsedMs)
		}
	})

	t.Run("wrong answer eliminates", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		out, err := applyAnswer(s, "player1", 2, testStart.Add(time.Second))
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if !out.Eliminated || out.Reason != models.EliminationIncorrectAnswer {
			t.Errorf("outcome = %+v", out)
		}
		p := s.player("player1")
		if !p.Eliminated || p.Progress != 0 {
			t.Errorf("player = %+v", p)
		}
	})

	t.Run("overdue submission eliminates before scoring", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		// The answer itself is correct, but it arrives too late.
		out, err := applyAnswer(s, "player1", 1, testStart.Add(models.QuestionDeadline()+time.Second))
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if !out.Eliminated || out.Reason != models.EliminationTimeLimit {
			t.Errorf("outcome = %+v", out)
		}
		if out.Correct || s.player("player1").Score != 0 {
			t.Error("late answer was scored")
		}
	})

	t.Run("submission exactly at the deadline counts", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		out, err := applyAnswer(s, "player1", 1, testStart.Add(models.QuestionDeadline()))
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if out.Eliminated {
			t.Errorf("on-time answer eliminated: %+v", out)
		}
	})

	t.Run("eliminated player cannot answer", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		if _, err := applyAnswer(s, "player1", 2, testStart.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		_, err := applyAnswer(s, "player1", 1, testStart.Add(2*time.Second))
		if !errors.Is(err, errors.ErrCodeAlreadyEliminated) {
			t.Errorf("expected ALREADY_ELIMINATED, got %v", err)
		}
	})

	t.Run("non-player rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		if _, err := applyAnswer(s, "stranger", 1, testStart.Add(time.Second)); !errors.Is(err, errors.ErrCodeNotAPlayer) {
			t.Errorf("expected NOT_A_PLAYER, got %v", err)
		}
	})

	t.Run("answer outside domain rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		for _, code := range []int{0, 4, -1} {
			if _, err := applyAnswer(s, "player1", code, testStart.Add(time.Second)); !errors.Is(err, errors.ErrCodeInvalidAnswer) {
				t.Errorf("code %d: expected INVALID_ANSWER, got %v", code, err)
			}
		}
	})

	t.Run("finishing enters the leaderboard in order", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		out := answerAll(t, s, "player2", models.TotalQuestions)
		if !out.Finished || out.NewWinner == nil {
			t.Fatalf("outcome = %+v", out)
		}
		answerAll(t, s, "player1", models.TotalQuestions)
		if len(s.Winners) != 2 {
			t.Fatalf("winners = %d, want 2", len(s.Winners))
		}
		if s.Winners[0].Account != "player2" || s.Winners[0].Rank != 1 {
			t.Errorf("rank 1 = %+v", s.Winners[0])
		}
		if s.Winners[1].Account != "player1" || s.Winners[1].Rank != 2 {
			t.Errorf("rank 2 = %+v", s.Winners[1])
		}
	})

	t.Run("finisher cannot answer again", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		answerAll(t, s, "player1", models.TotalQuestions)
		_, err := applyAnswer(s, "player1", 1, testStart.Add(time.Hour))
		if !errors.Is(err, errors.ErrCodeInvalidAnswer) {
			t.Errorf("expected INVALID_ANSWER, got %v", err)
		}
	})
}

func TestForcedTimeout(t *testing.T) {
	t.Run("within the limit rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		_, err := applyForcedTimeout(s, "player1", testStart.Add(models.QuestionDeadline()))
		if !errors.Is(err, errors.ErrCodeTimeoutNotReached) {
			t.Errorf("expected TIMEOUT_NOT_REACHED, got %v", err)
		}
	})

	t.Run("overdue player eliminated", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		out, err := applyForcedTimeout(s, "player1", testStart.Add(models.QuestionDeadline()+time.Second))
		if err != nil {
			t.Fatalf("timeout: %v", err)
		}
		if !out.Eliminated || out.Reason != models.EliminationTimeLimit {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("finisher cannot be timed out", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		answerAll(t, s, "player1", models.TotalQuestions)
		_, err := applyForcedTimeout(s, "player1", testStart.Add(time.Hour))
		if !errors.Is(err, errors.ErrCodeTimeoutNotReached) {
			t.Errorf("expected TIMEOUT_NOT_REACHED, got %v", err)
		}
	})

	t.Run("before start rejected", func(t *testing.T) {
		s := newTestState(t, 2)
		_, err := applyForcedTimeout(s, "player1", testStart)
		if !errors.Is(err, errors.ErrCodeGameNotInProgress) {
			t.Errorf("expected GAME_NOT_IN_PROGRESS, got %v", err)
		}
	})
}

func TestEndConditions(t *testing.T) {
	t.Run("sole survivor ends the game", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		if _, err := applyAnswer(s, "player2", 3, testStart.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		ended, survivor := evaluateEnd(s)
		if !ended || survivor == nil || survivor.Account != "player1" {
			t.Errorf("ended=%v survivor=%+v", ended, survivor)
		}
	})

	t.Run("finisher waits for stragglers", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		answerAll(t, s, "player1", models.TotalQuestions)
		if ended, _ := evaluateEnd(s); ended {
			t.Error("game ended with an active unfinished player")
		}
		if _, err := applyAnswer(s, "player3", 2, testStart.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if ended, _ := evaluateEnd(s); ended {
			t.Error("game ended with player2 still unfinished")
		}
		answerAll(t, s, "player2", models.TotalQuestions)
		ended, survivor := evaluateEnd(s)
		if !ended || survivor != nil {
			t.Errorf("ended=%v survivor=%+v, want finishers-only end", ended, survivor)
		}
	})

	t.Run("two active players keep playing", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		if ended, _ := evaluateEnd(s); ended {
			t.Error("fresh game reported ended")
		}
	})
}

func TestSettlement(t *testing.T) {
	t.Run("sole survivor takes the whole pool", func(t *testing.T) {
		s := newTestState(t, 2)
		startGame(t, s)
		if _, err := applyAnswer(s, "player2", 3, testStart.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		_, survivor := evaluateEnd(s)
		plan, err := buildSettlement(s, survivor)
		if err != nil {
			t.Fatalf("settlement: %v", err)
		}
		// player2 fell in the first stage: no refund.
		if len(plan.Payouts) != 1 {
			t.Fatalf("payouts = %+v", plan.Payouts)
		}
		if got := plan.Payouts[0]; got.Account != "player1" || got.Amount != 2*models.MinStake || got.Type != models.TxTypePrize {
			t.Errorf("payout = %+v", got)
		}
		if plan.BadgeTo != "player1" {
			t.Errorf("badge to %q, want player1", plan.BadgeTo)
		}
	})

	t.Run("finishers split equally after stage refunds", func(t *testing.T) {
		s := newTestState(t, 3)
		startGame(t, s)
		// player3 survives into the second stage, then falls.
		answerAll(t, s, "player3", 7)
		if _, err := applyAnswer(s, "player3", 2, s.player("player3").LastAnswerAt.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		answerAll(t, s, "player1", models.TotalQuestions)
		answerAll(t, s, "player2", models.TotalQuestions)

		ended, survivor := evaluateEnd(s)
		if !ended || survivor != nil {
			t.Fatalf("ended=%v survivor=%+v", ended, survivor)
		}
		plan, err := buildSettlement(s, survivor)
		if err != nil {
			t.Fatalf("settlement: %v", err)
		}

		refund := int64(models.MinStake) * 30 / 100
		share := (3*int64(models.MinStake) - refund) / 2
		want := map[string]int64{"player3": refund, "player1": share, "player2": share}
		for _, out := range plan.Payouts {
			if out.Amount != want[out.Account] {
				t.Errorf("%s paid %d, want %d", out.Account, out.Amount, want[out.Account])
			}
		}
		if plan.BadgeTo != "player1" {
			t.Errorf("badge to %q, want first finisher", plan.BadgeTo)
		}
	})

	t.Run("division remainder goes to the first finisher", func(t *testing.T) {
		s := newTestState(t, 4)
		startGame(t, s)
		answerAll(t, s, "player4", 5)
		if _, err := applyAnswer(s, "player4", 2, s.player("player4").LastAnswerAt.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		for _, account := range []string{"player2", "player1", "player3"} {
			answerAll(t, s, account, models.TotalQuestions)
		}

		plan, err := buildSettlement(s, nil)
		if err != nil {
			t.Fatalf("settlement: %v", err)
		}
		refund := int64(models.MinStake) * 30 / 100
		remaining := 4*int64(models.MinStake) - refund
		share := remaining / 3
		extra := remaining % 3
		if extra == 0 {
			t.Fatal("test setup produced no remainder")
		}
		for _, out := range plan.Payouts {
			if out.Account == "player2" && out.Type == models.TxTypePrize && out.Amount != share+extra {
				t.Errorf("first finisher paid %d, want %d", out.Amount, share+extra)
			}
		}
	})

	t.Run("prize winners capped", func(t *testing.T) {
		s := newTestState(t, 5)
		startGame(t, s)
		answerAll(t, s, "player5", 14)
		if _, err := applyAnswer(s, "player5", 2, s.player("player5").LastAnswerAt.Add(time.Second)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		for _, account := range []string{"player1", "player2", "player3", "player4"} {
			answerAll(t, s, account, models.TotalQuestions)
		}

		plan, err := buildSettlement(s, nil)
		if err != nil {
			t.Fatalf("settlement: %v", err)
		}
		prizes := 0
		for _, out := range plan.Payouts {
			if out.Type == models.TxTypePrize {
				prizes++
				if out.Account == "player4" {
					t.Error("fourth finisher received a prize")
				}
			}
		}
		if prizes != models.MaxWinners {
			t.Errorf("prize payouts = %d, want %d", prizes, models.MaxWinners)
		}
	})

	t.Run("every settlement conserves the pool", func(t *testing.T) {
		// Conservation is asserted inside buildSettlement; exercise a
		// mix of stages and finisher counts and just demand success.
		type elim struct {
			account  string
			progress int
		}
		tests := []struct {
			name    string
			players int
			elims   []elim
		}{
			{"all stages represented", 6, []elim{{"player4", 2}, {"player5", 6}, {"player6", 12}}},
			{"single finisher", 3, []elim{{"player2", 0}, {"player3", 9}}},
			{"late eliminations", 4, []elim{{"player4", 14}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := newTestState(t, tt.players)
				startGame(t, s)
				finishers := map[string]bool{}
				for i := 1; i <= tt.players; i++ {
					finishers[fmt.Sprintf("player%d", i)] = true
				}
				for _, e := range tt.elims {
					answerAll(t, s, e.account, e.progress)
					if _, err := applyAnswer(s, e.account, 2, s.player(e.account).LastAnswerAt.Add(time.Second)); err != nil {
						t.Fatalf("eliminate %s: %v", e.account, err)
					}
					delete(finishers, e.account)
				}
				for account := range finishers {
					answerAll(t, s, account, models.TotalQuestions)
				}
				ended, survivor := evaluateEnd(s)
				if !ended {
					t.Fatal("game did not end")
				}
				if _, err := buildSettlement(s, survivor); err != nil {
					t.Errorf("settlement: %v", err)
				}
			})
		}
	})
}

func TestRefundPercent(t *testing.T) {
	tests := []struct {
		progress int
		want     int64
	}{
		{0, 0}, {4, 0},
		{5, 30}, {9, 30},
		{10, 70}, {14, 70},
		{15, 100},
	}
	for _, tt := range tests {
		if got := models.RefundPercent(tt.progress); got != tt.want {
			t.Errorf("RefundPercent(%d) = %d, want %d", tt.progress, got, tt.want)
		}
	}
}

func TestEliminationIsFinal(t *testing.T) {
	s := newTestState(t, 3)
	startGame(t, s)
	if _, err := applyAnswer(s, "player1", 2, testStart.Add(time.Second)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := applyAnswer(s, "player1", 1, testStart.Add(2*time.Second)); !errors.Is(err, errors.ErrCodeAlreadyEliminated) {
		t.Errorf("answer after elimination: %v", err)
	}
	if _, err := applyForcedTimeout(s, "player1", testStart.Add(time.Hour)); !errors.Is(err, errors.ErrCodeAlreadyEliminated) {
		t.Errorf("timeout after elimination: %v", err)
	}
}
