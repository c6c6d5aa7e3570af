package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/pkg/utils"
)

// Main menu button labels
const (
	BtnGames   = "🎮 Games"
	BtnBalance = "💰 Balance"
	BtnBadges  = "🏅 Badges"
	BtnHelp    = "ℹ️ Help"
)

// MainMenuKeyboard creates the main menu keyboard
func MainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton

	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(BtnGames),
	))
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(BtnBalance),
		tgbotapi.NewKeyboardButton(BtnBadges),
		tgbotapi.NewKeyboardButton(BtnHelp),
	))

	return tgbotapi.NewReplyKeyboard(rows...)
}

// GameListKeyboard lists open games, one button per game
func GameListKeyboard(games []models.GameInstance) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, game := range games {
		label := fmt.Sprintf("#%d %s - %s %s", game.ID, game.Basename,
			utils.FormatTokens(game.StakeAmount), game.StakeAsset)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("game_%d", game.ID)),
		))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// GameDetailKeyboard shows the actions available on one game
func GameDetailKeyboard(game *models.GameInstance, joined bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	if game.IsOpen() && !joined {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Join", fmt.Sprintf("join_%d", game.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", fmt.Sprintf("game_%d", game.ID)),
		tgbotapi.NewInlineKeyboardButtonData("« Lobby", "lobby"),
	))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// AnswerKeyboard shows the answer buttons for the caller's current
// question
func AnswerKeyboard(gameID uint) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for code := models.MinAnswerCode; code <= models.MaxAnswerCode; code++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d", code), fmt.Sprintf("ans_%d_%d", gameID, code)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
}
