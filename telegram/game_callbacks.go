package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/internal/security"
	"github.com/basequiz/quiz_arena/pkg/utils"
)

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Acknowledge immediately so the button stops spinning.
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))

	data := query.Data
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	switch {
	case data == "lobby":
		b.showLobby(chatID)

	case strings.HasPrefix(data, "game_"):
		var gameID uint
		fmt.Sscanf(data, "game_%d", &gameID)
		b.showGameDetail(chatID, userID, gameID)

	case strings.HasPrefix(data, "join_"):
		var gameID uint
		fmt.Sscanf(data, "join_%d", &gameID)
		b.handleJoinButton(chatID, query.From, gameID)

	case strings.HasPrefix(data, "ans_"):
		var gameID uint
		var code int
		fmt.Sscanf(data, "ans_%d_%d", &gameID, &code)
		b.handleAnswerButton(chatID, userID, gameID, code)
	}
}

func (b *Bot) showGameDetail(chatID int64, userID int64, gameID uint) {
	game, err := b.games.GetInstance(gameID)
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	players, err := b.games.GetPlayers(gameID)
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}

	joined := false
	for _, p := range players {
		if p.Account == account(userID) {
			joined = true
			break
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Game #%d - %s\n", game.ID, game.Basename)
	fmt.Fprintf(&sb, "State: %s\n", game.State)
	fmt.Fprintf(&sb, "Stake: %s %s\n", utils.FormatTokens(game.StakeAmount), game.StakeAsset)
	fmt.Fprintf(&sb, "Pool: %s %s\n", utils.FormatTokens(game.PrizePool), game.StakeAsset)
	fmt.Fprintf(&sb, "Players: %d/%d\n", len(players), game.PlayerLimit)
	if joined {
		sb.WriteString("\nYou are in this game.")
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = GameDetailKeyboard(game, joined)
	b.api.Send(msg)
}

// handleJoinButton joins with identity derived from the Telegram
// profile; /join takes explicit basename and handle instead.
func (b *Bot) handleJoinButton(chatID int64, from *tgbotapi.User, gameID uint) {
	// Telegram usernames allow underscores, name labels do not.
	username := security.SanitizeBasename(strings.ReplaceAll(from.UserName, "_", "-"))
	if username == "" || !security.ValidateBasename(username) {
		b.send(chatID, "Set a Telegram username first, or use /join <game> <basename> <handle>.", nil)
		return
	}

	player, err := b.games.Join(gameID, account(from.ID), username, username, "")
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("You are in! Seat %d of game #%d. Wait for the creator to start.",
		player.JoinOrder, gameID), nil)
}

func (b *Bot) handleAnswerButton(chatID int64, userID int64, gameID uint, code int) {
	result, err := b.games.SubmitAnswer(gameID, account(userID), code)
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}

	switch {
	case result.Eliminated:
		b.send(chatID, fmt.Sprintf("Question %d: %s. You are out of game #%d.",
			result.QuestionNumber, humanReason(result.Reason), gameID), nil)
	case result.Finished:
		b.send(chatID, fmt.Sprintf("Question %d correct - that was the last one! You finished game #%d.",
			result.QuestionNumber, gameID), nil)
	default:
		b.send(chatID, fmt.Sprintf("Question %d correct! Next: question %d of %d.",
			result.QuestionNumber, result.QuestionNumber+1, models.TotalQuestions), AnswerKeyboard(gameID))
	}

	if result.GameEnded {
		b.notifyGameEnded(gameID)
	}
}
