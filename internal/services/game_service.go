package services

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/internal/repositories"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"github.com/basequiz/quiz_arena/pkg/logger"
	"github.com/basequiz/quiz_arena/pkg/utils"
)

// GameService runs the per-instance lifecycle: joining, the question
// round, eliminations, and settlement. Every mutating operation runs in
// one transaction that starts by locking the instance row, so there is
// exactly one writer per game at a time.
type GameService struct {
	db     *gorm.DB
	games  *repositories.GameRepository
	tokens *repositories.TokenRepository
	badges *repositories.BadgeRepository
	clock  clock.Clock
	log    *zap.SugaredLogger
}

func NewGameService(db *gorm.DB, games *repositories.GameRepository, tokens *repositories.TokenRepository, badges *repositories.BadgeRepository, clk clock.Clock) *GameService {
	return &GameService{
		db:     db,
		games:  games,
		tokens: tokens,
		badges: badges,
		clock:  clk,
		log:    logger.Named("game"),
	}
}

// AnswerResult is what a submission or forced timeout reports back to
// the caller's surface.
type AnswerResult struct {
	Account        string
	QuestionNumber int
	Correct        bool
	Eliminated     bool
	Reason         string
	Finished       bool
	GameEnded      bool
}

// Join stakes the caller into an open game. The stake moves into the
// game's escrow account in the same transaction that records the
// player, so a failed pull never leaves a seated player.
func (s *GameService) Join(gameID uint, account, basename, handle, referrer string) (*models.Player, error) {
	var joined *models.Player
	err := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.loadStateTx(tx, gameID)
		if err != nil {
			return err
		}

		p, err := applyJoin(state, account, basename, handle, referrer)
		if err != nil {
			return err
		}

		if err := s.tokens.PullTx(tx, state.Game.StakeAsset, account, state.Game.EscrowAccount(),
			state.Game.StakeAmount, models.TxTypeStake, fmt.Sprintf("stake for game %d", gameID)); err != nil {
			return err
		}
		if err := tx.Create(p).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to record player")
		}
		if p.ReferredBy != "" {
			if ref := state.player(p.ReferredBy); ref != nil {
				if err := tx.Save(ref).Error; err != nil {
					return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update referrer")
				}
			}
		}
		if err := tx.Save(state.Game).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update prize pool")
		}
		if err := s.games.RecordEventTx(tx, gameID, models.EventPlayerJoined, account, map[string]interface{}{
			"basename":   p.Basename,
			"handle":     p.Handle,
			"join_order": p.JoinOrder,
			"stake":      p.StakePaid,
		}); err != nil {
			return err
		}
		joined = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("player joined", "game_id", gameID, "account", account, "join_order", joined.JoinOrder)
	return joined, nil
}

// SetQuestions stores the answer key and the off-chain questions
// reference. Creator only, open games only, and strictly once.
func (s *GameService) SetQuestions(gameID uint, caller, questionsRef string, answers []int) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.loadStateTx(tx, gameID)
		if err != nil {
			return err
		}
		if err := applySetQuestions(state, caller, questionsRef, answers); err != nil {
			return err
		}
		if err := s.games.StoreAnswerKeyTx(tx, gameID, answers); err != nil {
			return err
		}
		if err := tx.Save(state.Game).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update game instance")
		}
		return s.games.RecordEventTx(tx, gameID, models.EventQuestionsStored, caller, map[string]interface{}{
			"questions_ref": questionsRef,
			"count":         len(answers),
		})
	})
	if err != nil {
		return err
	}
	s.log.Infow("questions stored", "game_id", gameID, "ref", questionsRef)
	return nil
}

// Start moves an open game into progress. Every player's answer clock
// begins at the start timestamp.
func (s *GameService) Start(gameID uint, caller string) error {
	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.loadStateTx(tx, gameID)
		if err != nil {
			return err
		}
		if err := applyStart(state, caller, now); err != nil {
			return err
		}
		if err := tx.Save(state.Game).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update game instance")
		}
		for _, p := range state.Players {
			if err := tx.Save(p).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update player")
			}
		}
		return s.games.RecordEventTx(tx, gameID, models.EventGameStarted, caller, map[string]interface{}{
			"players":    len(state.Players),
			"prize_pool": state.Game.PrizePool,
		})
	})
	if err != nil {
		return err
	}
	s.log.Infow("game started", "game_id", gameID)
	return nil
}

// SubmitAnswer evaluates the caller's answer to their current question.
// An overdue submission eliminates on the spot; otherwise the answer is
// scored and, when it was the last one, the player enters the
// leaderboard. Either path can end the game.
func (s *GameService) SubmitAnswer(gameID uint, caller string, code int) (*AnswerResult, error) {
	now := s.clock.Now()
	var result *AnswerResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.loadStateTx(tx, gameID)
		if err != nil {
			return err
		}
		out, err := applyAnswer(state, caller, code, now)
		if err != nil {
			return err
		}

		p := state.player(caller)
		if err := tx.Save(p).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update player")
		}

		if err := s.games.RecordEventTx(tx, gameID, models.EventAnswerSubmitted, caller, map[string]interface{}{
			"question": out.QuestionNumber,
			"correct":  out.Correct,
			"late":     out.Reason == models.EliminationTimeLimit,
		}); err != nil {
			return err
		}
		if out.Reason != models.EliminationTimeLimit {
			// A late submission is never scored, so only evaluated
			// answers are journalled.
			record := &models.PlayerAnswer{
				GameID:         gameID,
				Account:        caller,
				QuestionNumber: out.QuestionNumber,
				Answer:         out.Answer,
				Correct:        out.Correct,
				ElapsedMs:      out.ElapsedMs,
			}
			if err := tx.Create(record).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to journal answer")
			}
		}
		if out.Eliminated {
			if err := s.games.RecordEventTx(tx, gameID, models.EventPlayerEliminated, caller, map[string]interface{}{
				"question": out.QuestionNumber,
				"reason":   out.Reason,
			}); err != nil {
				return err
			}
		}
		if out.NewWinner != nil {
			if err := tx.Create(out.NewWinner).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to record finisher")
			}
		}

		ended, err := s.maybeFinishTx(tx, state)
		if err != nil {
			return err
		}
		result = &AnswerResult{
			Account:        out.Account,
			QuestionNumber: out.QuestionNumber,
			Correct:        out.Correct,
			Eliminated:     out.Eliminated,
			Reason:         out.Reason,
			Finished:       out.Finished,
			GameEnded:      ended,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("answer processed", "game_id", gameID, "account", caller,
		"question", result.QuestionNumber, "correct", result.Correct,
		"eliminated", result.Eliminated, "ended", result.GameEnded)
	return result, nil
}

// CheckTimeout force-eliminates a player who has overrun the question
// timer. Anyone may call it; it exists so one stalled player cannot
// hold the pool hostage.
func (s *GameService) CheckTimeout(gameID uint, caller, target string) (*AnswerResult, error) {
	now := s.clock.Now()
	var result *AnswerResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.loadStateTx(tx, gameID)
		if err != nil {
			return err
		}
		out, err := applyForcedTimeout(state, target, now)
		if err != nil {
			return err
		}

		p := state.player(target)
		if err := tx.Save(p).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update player")
		}
		if err := s.games.RecordEventTx(tx, gameID, models.EventPlayerEliminated, target, map[string]interface{}{
			"question":     out.QuestionNumber,
			"reason":       out.Reason,
			"triggered_by": caller,
		}); err != nil {
			return err
		}

		ended, err := s.maybeFinishTx(tx, state)
		if err != nil {
			return err
		}
		result = &AnswerResult{
			Account:        out.Account,
			QuestionNumber: out.QuestionNumber,
			Eliminated:     true,
			Reason:         out.Reason,
			GameEnded:      ended,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("timeout enforced", "game_id", gameID, "target", target, "by", caller, "ended", result.GameEnded)
	return result, nil
}

// maybeFinishTx checks the end conditions and, when met, runs the whole
// settlement inside the caller's transaction: stage refunds, prize
// payouts, the badge mint, and the state transition.
func (s *GameService) maybeFinishTx(tx *gorm.DB, state *matchState) (bool, error) {
	ended, survivor := evaluateEnd(state)
	if !ended {
		return false, nil
	}

	plan, err := buildSettlement(state, survivor)
	if err != nil {
		return false, err
	}

	game := state.Game
	for _, out := range plan.Payouts {
		if err := s.tokens.PushTx(tx, game.StakeAsset, game.EscrowAccount(), out.Account,
			out.Amount, out.Type, fmt.Sprintf("game %d settlement", game.ID)); err != nil {
			return false, err
		}
		if err := s.games.RecordEventTx(tx, game.ID, models.EventPrizePaid, out.Account, map[string]interface{}{
			"amount": out.Amount,
			"type":   out.Type,
		}); err != nil {
			return false, err
		}
	}
	for _, w := range state.Winners {
		if err := tx.Save(w).Error; err != nil {
			return false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to update leaderboard")
		}
	}

	tokenRef := game.MetadataRef
	if tokenRef == "" {
		tokenRef = utils.GenerateRandomID(16)
	}
	badgeID, err := s.badges.MintTx(tx, game.ID, plan.BadgeTo, tokenRef)
	if err != nil {
		return false, err
	}
	if err := s.games.RecordEventTx(tx, game.ID, models.EventBadgeMinted, plan.BadgeTo, map[string]interface{}{
		"badge_id": badgeID,
	}); err != nil {
		return false, err
	}

	applyEnd(state, s.clock.Now())
	if err := tx.Save(game).Error; err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to end game")
	}
	return true, s.games.RecordEventTx(tx, game.ID, models.EventGameEnded, "", map[string]interface{}{
		"prize_pool": game.PrizePool,
		"winners":    len(state.Winners),
	})
}

// loadStateTx locks the instance row and loads everything the rules
// need: players, answer key, leaderboard.
func (s *GameService) loadStateTx(tx *gorm.DB, gameID uint) (*matchState, error) {
	game, err := s.games.LockInstanceTx(tx, gameID)
	if err != nil {
		return nil, err
	}
	players, err := s.games.GetPlayersTx(tx, gameID)
	if err != nil {
		return nil, err
	}
	answers, err := s.games.GetAnswerKeyTx(tx, gameID)
	if err != nil {
		return nil, err
	}
	winners, err := s.games.GetWinnersTx(tx, gameID)
	if err != nil {
		return nil, err
	}
	return &matchState{Game: game, Players: players, Answers: answers, Winners: winners}, nil
}

// GetInstance retrieves one game instance.
func (s *GameService) GetInstance(gameID uint) (*models.GameInstance, error) {
	return s.games.GetInstance(gameID)
}

// ListInProgressInstances returns running games.
func (s *GameService) ListInProgressInstances() ([]models.GameInstance, error) {
	return s.games.ListInProgressInstances()
}

// OverduePlayers returns the active players of a running game whose
// question timer has lapsed, for the background sweeper.
func (s *GameService) OverduePlayers(gameID uint) ([]*models.Player, error) {
	players, err := s.games.GetPlayers(gameID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var lapsed []*models.Player
	for _, p := range players {
		if p.Active() && !p.Finished() && overdue(p, now) {
			lapsed = append(lapsed, p)
		}
	}
	return lapsed, nil
}

// GetPlayers lists a game's players in join order.
func (s *GameService) GetPlayers(gameID uint) ([]*models.Player, error) {
	return s.games.GetPlayers(gameID)
}

// GetPlayer retrieves one player record, or nil when the account never
// joined.
func (s *GameService) GetPlayer(gameID uint, account string) (*models.Player, error) {
	return s.games.GetPlayer(gameID, account)
}

// GetWinners lists the leaderboard in completion order.
func (s *GameService) GetWinners(gameID uint) ([]*models.Winner, error) {
	return s.games.GetWinners(gameID)
}

// GetEvents lists a game's event stream, oldest first.
func (s *GameService) GetEvents(gameID uint, limit int) ([]models.GameEvent, error) {
	return s.games.GetEvents(gameID, limit)
}
