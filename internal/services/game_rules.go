package services

import (
	"fmt"
	"time"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/errors"
)

// matchState is the fully loaded state of one game instance: the
// catalogue row, the ordered player list, the answer key, and the
// leaderboard. The rules below validate against it and mutate it in
// memory; GameService loads it under a row lock, applies a rule, and
// commits the changed rows in one transaction. Keeping the rules free
// of storage concerns is what lets the invariants be tested directly.
type matchState struct {
	Game    *models.GameInstance
	Players []*models.Player // join order
	Answers map[int]int      // question number -> correct code
	Winners []*models.Winner // completion order
}

func (s *matchState) player(account string) *models.Player {
	for _, p := range s.Players {
		if p.Account == account {
			return p
		}
	}
	return nil
}

func (s *matchState) activePlayers() []*models.Player {
	var active []*models.Player
	for _, p := range s.Players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

// answerOutcome describes what one submission (or forced timeout) did.
type answerOutcome struct {
	Account        string
	QuestionNumber int
	Answer         int
	Correct        bool
	Eliminated     bool
	Reason         string
	Finished       bool
	ElapsedMs      int64
	NewWinner      *models.Winner
}

// payout is one settlement transfer out of the escrow pool.
type payout struct {
	Account string
	Amount  int64
	Type    string // models.TxTypeRefund or models.TxTypePrize
}

// settlementPlan is the complete set of transfers that ends a game,
// plus who receives the achievement badge.
type settlementPlan struct {
	Payouts []payout
	BadgeTo string
}

// applyJoin validates a join and appends the player record. The caller
// is responsible for actually pulling the stake; StakePaid and the
// prize pool are updated here so conservation is visible in one place.
func applyJoin(s *matchState, account, basename, handle, referrer string) (*models.Player, error) {
	if !s.Game.IsOpen() {
		return nil, errors.New(errors.ErrCodeGameNotOpen, "game is not open for joining")
	}
	if s.player(account) != nil {
		return nil, errors.New(errors.ErrCodeAlreadyJoined, "account already joined this game")
	}
	if len(s.Players) >= s.Game.PlayerLimit {
		return nil, errors.New(errors.ErrCodePlayerLimitReached, "player limit reached")
	}
	if basename == "" {
		return nil, errors.New(errors.ErrCodeInvalidBasename, "basename must not be empty")
	}
	if handle == "" {
		return nil, errors.New(errors.ErrCodeEmptyHandle, "handle must not be empty")
	}

	p := &models.Player{
		GameID:    s.Game.ID,
		Account:   account,
		Basename:  basename,
		Handle:    handle,
		StakePaid: s.Game.StakeAmount,
		JoinOrder: len(s.Players) + 1,
	}
	// Referral is recorded once, at join, and never rewritten.
	// Self-referrals are dropped silently.
	if referrer != "" && referrer != account {
		p.ReferredBy = referrer
		if ref := s.player(referrer); ref != nil {
			ref.Referrals++
		}
	}

	s.Players = append(s.Players, p)
	s.Game.PrizePool += s.Game.StakeAmount
	return p, nil
}

// applySetQuestions validates and stores the full answer key. Strictly
// single-shot: once a key is stored it cannot be replaced.
func applySetQuestions(s *matchState, caller, questionsRef string, answers []int) error {
	if caller != s.Game.Creator {
		return errors.New(errors.ErrCodeUnauthorized, "only the creator may set questions")
	}
	if !s.Game.IsOpen() {
		return errors.New(errors.ErrCodeGameNotOpen, "questions can only be set while open")
	}
	if s.Game.QuestionsSet {
		return errors.New(errors.ErrCodeQuestionsAlreadySet, "questions already set")
	}
	if questionsRef == "" {
		return errors.New(errors.ErrCodeValidation, "questions reference must not be empty")
	}
	if len(answers) != models.TotalQuestions {
		return errors.New(errors.ErrCodeInvalidQuestions,
			fmt.Sprintf("expected %d answers, got %d", models.TotalQuestions, len(answers)))
	}
	for i, code := range answers {
		if !models.ValidAnswerCode(code) {
			return errors.New(errors.ErrCodeInvalidQuestions,
				fmt.Sprintf("answer %d for question %d outside valid domain", code, i+1))
		}
	}

	s.Game.QuestionsRef = questionsRef
	s.Game.QuestionsSet = true
	s.Answers = make(map[int]int, len(answers))
	for i, code := range answers {
		s.Answers[i+1] = code
	}
	return nil
}

// applyStart validates and performs the open -> in_progress transition.
// Every player's answer clock starts at the start timestamp so the
// first question is bounded too.
func applyStart(s *matchState, caller string, now time.Time) error {
	if caller != s.Game.Creator {
		return errors.New(errors.ErrCodeUnauthorized, "only the creator may start the game")
	}
	if !s.Game.IsOpen() {
		return errors.New(errors.ErrCodeGameNotOpen, "game is not open")
	}
	if !s.Game.QuestionsSet {
		return errors.New(errors.ErrCodeQuestionsNotSet, "questions not set")
	}
	if len(s.Players) < models.MinPlayers {
		return errors.New(errors.ErrCodeNotEnoughPlayers,
			fmt.Sprintf("need at least %d players, have %d", models.MinPlayers, len(s.Players)))
	}
	if len(s.Players) > s.Game.PlayerLimit {
		return errors.New(errors.ErrCodePlayerLimitReached, "player count exceeds limit")
	}

	s.Game.State = models.GameStateInProgress
	s.Game.StartedAt = &now
	for _, p := range s.Players {
		t := now
		p.LastAnswerAt = &t
	}
	return nil
}

// applyAnswer evaluates one submission for the caller's current
// question. Evaluation order: timeout, correctness, completion. The
// end condition is checked separately by the caller so forced timeouts
// share it.
func applyAnswer(s *matchState, caller string, code int, now time.Time) (*answerOutcome, error) {
	if !s.Game.IsInProgress() {
		return nil, errors.New(errors.ErrCodeGameNotInProgress, "game is not in progress")
	}
	p := s.player(caller)
	if p == nil {
		return nil, errors.New(errors.ErrCodeNotAPlayer, "caller is not a player in this game")
	}
	if p.Eliminated {
		return nil, errors.New(errors.ErrCodeAlreadyEliminated, "player has been eliminated")
	}
	if !models.ValidAnswerCode(code) {
		return nil, errors.New(errors.ErrCodeInvalidAnswer,
			fmt.Sprintf("answer code %d outside valid domain", code))
	}
	if p.Finished() {
		// A finisher has nothing left to answer; treat like any other
		// out-of-range progress rather than inventing a new state.
		return nil, errors.New(errors.ErrCodeInvalidAnswer, "player already answered every question")
	}

	out := &answerOutcome{
		Account:        caller,
		QuestionNumber: p.Progress + 1,
		Answer:         code,
	}

	// 1. Timeout: an overdue player is eliminated before their answer
	// is even looked at.
	if overdue(p, now) {
		eliminate(p, models.EliminationTimeLimit)
		out.Eliminated = true
		out.Reason = models.EliminationTimeLimit
		return out, nil
	}

	if p.LastAnswerAt != nil {
		out.ElapsedMs = now.Sub(*p.LastAnswerAt).Milliseconds()
	}

	// 2. Correctness.
	if code != s.Answers[out.QuestionNumber] {
		eliminate(p, models.EliminationIncorrectAnswer)
		out.Eliminated = true
		out.Reason = models.EliminationIncorrectAnswer
	} else {
		p.Score++
		p.Progress++
		out.Correct = true
	}
	t := now
	p.LastAnswerAt = &t

	// 3. Completion.
	if out.Correct && p.Finished() {
		w := &models.Winner{
			GameID:     s.Game.ID,
			Account:    p.Account,
			Rank:       len(s.Winners) + 1,
			Score:      p.Score,
			FinishedAt: now,
		}
		s.Winners = append(s.Winners, w)
		out.Finished = true
		out.NewWinner = w
	}
	return out, nil
}

// applyForcedTimeout eliminates a named overdue player. Anyone may
// trigger it; it exists so a stalled player cannot block termination.
func applyForcedTimeout(s *matchState, target string, now time.Time) (*answerOutcome, error) {
	if !s.Game.IsInProgress() {
		return nil, errors.New(errors.ErrCodeGameNotInProgress, "game is not in progress")
	}
	p := s.player(target)
	if p == nil {
		return nil, errors.New(errors.ErrCodeNotAPlayer, "target is not a player in this game")
	}
	if p.Eliminated {
		return nil, errors.New(errors.ErrCodeAlreadyEliminated, "player has been eliminated")
	}
	if p.Finished() {
		return nil, errors.New(errors.ErrCodeTimeoutNotReached, "player already finished")
	}
	if !overdue(p, now) {
		return nil, errors.New(errors.ErrCodeTimeoutNotReached, "player is within the time limit")
	}

	eliminate(p, models.EliminationTimeLimit)
	return &answerOutcome{
		Account:        target,
		QuestionNumber: p.Progress + 1,
		Eliminated:     true,
		Reason:         models.EliminationTimeLimit,
	}, nil
}

func overdue(p *models.Player, now time.Time) bool {
	return p.LastAnswerAt != nil && now.Sub(*p.LastAnswerAt) > models.QuestionDeadline()
}

func eliminate(p *models.Player, reason string) {
	p.Eliminated = true
	p.EliminationReason = reason
}

// evaluateEnd checks both win conditions after a submission:
// (a) exactly one active player remains, or
// (b) someone finished and no active unfinished player remains.
// Returns the sole survivor for case (a), nil for case (b).
func evaluateEnd(s *matchState) (ended bool, survivor *models.Player) {
	active := s.activePlayers()
	if len(active) == 1 {
		return true, active[0]
	}
	if len(s.Winners) == 0 {
		return false, nil
	}
	for _, p := range active {
		if !p.Finished() {
			return false, nil
		}
	}
	return true, nil
}

// buildSettlement computes every transfer that ends the game:
// stage-based refunds for eliminated players first, then the remaining
// pool to the sole survivor (case a) or split equally among the first
// MaxWinners finishers with the remainder to the first (case b). The
// plan must pay out the pool exactly.
func buildSettlement(s *matchState, survivor *models.Player) (*settlementPlan, error) {
	plan := &settlementPlan{}
	pool := s.Game.PrizePool
	paid := int64(0)

	for _, p := range s.Players {
		if !p.Eliminated {
			continue
		}
		refund := p.StakePaid * models.RefundPercent(p.Progress) / 100
		if refund == 0 {
			continue
		}
		plan.Payouts = append(plan.Payouts, payout{Account: p.Account, Amount: refund, Type: models.TxTypeRefund})
		paid += refund
	}

	remaining := pool - paid
	switch {
	case survivor != nil:
		plan.Payouts = append(plan.Payouts, payout{Account: survivor.Account, Amount: remaining, Type: models.TxTypePrize})
		plan.BadgeTo = survivor.Account
		paid += remaining
	case len(s.Winners) > 0:
		payees := s.Winners
		if len(payees) > models.MaxWinners {
			payees = payees[:models.MaxWinners]
		}
		share := remaining / int64(len(payees))
		extra := remaining % int64(len(payees))
		for i, w := range payees {
			amount := share
			if i == 0 {
				amount += extra
			}
			w.Prize = amount
			plan.Payouts = append(plan.Payouts, payout{Account: w.Account, Amount: amount, Type: models.TxTypePrize})
			paid += amount
		}
		plan.BadgeTo = s.Winners[0].Account
	default:
		return nil, errors.New(errors.ErrCodeInternalError, "settlement without survivor or finisher")
	}

	if paid != pool {
		return nil, errors.New(errors.ErrCodeInternalError,
			fmt.Sprintf("settlement does not conserve the pool: collected %d, paying %d", pool, paid))
	}
	if survivor != nil && len(s.Winners) > 0 {
		// Sole survivor who also finished keeps the whole remainder;
		// record it on their leaderboard row too.
		for _, w := range s.Winners {
			if w.Account == survivor.Account {
				w.Prize = remaining
			}
		}
	}
	return plan, nil
}

// applyEnd performs the in_progress -> ended transition.
func applyEnd(s *matchState, now time.Time) {
	s.Game.State = models.GameStateEnded
	s.Game.EndedAt = &now
}
