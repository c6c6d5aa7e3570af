package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"github.com/basequiz/quiz_arena/internal/config"
	"github.com/basequiz/quiz_arena/internal/models"
	"github.com/basequiz/quiz_arena/internal/repositories"
	"github.com/basequiz/quiz_arena/internal/security"
	"github.com/basequiz/quiz_arena/internal/services"
	"github.com/basequiz/quiz_arena/pkg/errors"
	"github.com/basequiz/quiz_arena/pkg/logger"
	"github.com/basequiz/quiz_arena/pkg/utils"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	config   *config.Config
	db       *gorm.DB
	registry *services.RegistryService
	games    *services.GameService
	tokens   *repositories.TokenRepository
	badges   *repositories.BadgeRepository

	// Worker pool for parallel processing
	workerChans []chan tgbotapi.Update
	stop        chan struct{}
}

const workerCount = 10

func InitBot(cfg *config.Config, db *gorm.DB) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if cfg.AppEnv == "development" {
		api.Debug = true
	}

	logger.Info("Authorized on account", "username", api.Self.UserName)

	// Initialize repositories
	registryRepo := repositories.NewRegistryRepository(db)
	gameRepo := repositories.NewGameRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	badgeRepo := repositories.NewBadgeRepository(db)

	bot := &Bot{
		api:         api,
		config:      cfg,
		db:          db,
		registry:    services.NewRegistryService(db, registryRepo, gameRepo, badgeRepo),
		games:       services.NewGameService(db, gameRepo, tokenRepo, badgeRepo, clock.New()),
		tokens:      tokenRepo,
		badges:      badgeRepo,
		workerChans: make([]chan tgbotapi.Update, workerCount),
		stop:        make(chan struct{}),
	}

	// Start workers
	for i := 0; i < workerCount; i++ {
		bot.workerChans[i] = make(chan tgbotapi.Update, 100)
		go bot.startWorker(bot.workerChans[i])
	}

	// Start update listener
	go bot.startUpdateListener()

	// Start timeout sweeper
	go bot.startTimeoutSweeper()

	return bot, nil
}

func (b *Bot) Stop() {
	close(b.stop)
	b.api.StopReceivingUpdates()
}

// account maps a Telegram user onto a ledger principal.
func account(userID int64) string {
	return fmt.Sprintf("tg:%d", userID)
}

func (b *Bot) startUpdateListener() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		logger.Info("Starting update listener...")
		updates := b.api.GetUpdatesChan(u)

		for update := range updates {
			var userID int64
			if update.Message != nil {
				userID = update.Message.From.ID
			} else if update.CallbackQuery != nil {
				userID = update.CallbackQuery.From.ID
			}

			if userID != 0 {
				// Hashed dispatch to workers to ensure per-user ordered processing
				workerIdx := userID % int64(len(b.workerChans))
				if workerIdx < 0 {
					workerIdx = -workerIdx
				}
				b.workerChans[workerIdx] <- update
			} else {
				go b.handleUpdate(update)
			}
		}

		select {
		case <-b.stop:
			return
		default:
			logger.Warn("Update channel closed. Restarting in 5 seconds...")
			time.Sleep(5 * time.Second)
		}
	}
}

func (b *Bot) startWorker(ch chan tgbotapi.Update) {
	for update := range ch {
		b.handleUpdate(update)
	}
}

// startTimeoutSweeper periodically force-eliminates players who have
// overrun the question timer, so stalled players cannot block a game.
func (b *Bot) startTimeoutSweeper() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.sweepTimeouts()
		}
	}
}

func (b *Bot) sweepTimeouts() {
	games, err := b.games.ListInProgressInstances()
	if err != nil {
		logger.Error("Failed to list running games", "error", err)
		return
	}
	for _, game := range games {
		lapsed, err := b.games.OverduePlayers(game.ID)
		if err != nil {
			logger.Error("Failed to find overdue players", "game_id", game.ID, "error", err)
			continue
		}
		for _, p := range lapsed {
			result, err := b.games.CheckTimeout(game.ID, "system", p.Account)
			if err != nil {
				// Someone may have answered between the scan and the
				// lock; that is fine.
				if !errors.Is(err, errors.ErrCodeTimeoutNotReached) {
					logger.Warn("Timeout sweep failed", "game_id", game.ID, "account", p.Account, "error", err)
				}
				continue
			}
			b.notifyElimination(game.ID, p.Account, result)
			if result.GameEnded {
				b.notifyGameEnded(game.ID)
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in handleUpdate", "error", r)
		}
	}()

	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	userID := message.From.ID

	logger.Debug("Received message", "user_id", userID, "text", message.Text)

	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	switch message.Text {
	case BtnGames:
		b.showLobby(message.Chat.ID)
	case BtnBalance:
		b.showBalance(message.Chat.ID, userID)
	case BtnBadges:
		b.showBadges(message.Chat.ID, userID)
	case BtnHelp:
		b.sendHelp(message.Chat.ID)
	default:
		b.send(message.Chat.ID, "Use the menu below or /help.", MainMenuKeyboard())
	}
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	args := strings.Fields(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.sendHelp(chatID)
	case "games":
		b.showLobby(chatID)
	case "balance":
		b.showBalance(chatID, userID)
	case "badges":
		b.showBadges(chatID, userID)
	case "create":
		b.handleCreate(chatID, userID, args)
	case "join":
		b.handleJoin(chatID, message.From, args)
	case "setquestions":
		b.handleSetQuestions(chatID, userID, args)
	case "startgame":
		b.handleStartGame(chatID, userID, args)
	case "status":
		b.handleStatus(chatID, args)
	case "invite":
		b.handleInvite(chatID, args)
	case "authorize":
		b.handleAuthorize(chatID, userID, args, true)
	case "revoke":
		b.handleAuthorize(chatID, userID, args, false)
	case "setasset":
		b.handleSetAsset(chatID, userID, args)
	default:
		b.send(chatID, "Unknown command. See /help.", nil)
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID

	// Development faucet: top up an empty wallet so the game is
	// playable without an external token bridge.
	if b.config.FaucetAmount > 0 {
		balance, err := b.tokens.BalanceOf(b.config.StakeAsset, account(userID))
		if err == nil && balance == 0 {
			if err := b.tokens.Mint(b.config.StakeAsset, account(userID), b.config.FaucetAmount, "welcome faucet"); err != nil {
				logger.Warn("Faucet mint failed", "user_id", userID, "error", err)
			}
		}
	}

	// /start may carry an invite token from a deep link.
	if payload := message.CommandArguments(); payload != "" {
		if claims, err := security.ValidateInviteToken(payload, b.config.JWTSecret); err == nil {
			b.showGameDetail(chatID, userID, claims.GameID)
			return
		}
	}

	text := "Welcome to Quiz Arena!\n\n" +
		"Stake tokens, answer 15 questions, survive all eliminations and split the pot.\n" +
		"Pick a game from the lobby to get started."
	b.send(chatID, text, MainMenuKeyboard())
}

func (b *Bot) sendHelp(chatID int64) {
	text := "Commands:\n" +
		"/games - list open games\n" +
		"/join <game> <basename> <handle> [referrer] - stake and join\n" +
		"/balance - your token balance\n" +
		"/badges - badges you have won\n" +
		"/status <game> - game status and players\n" +
		"/invite <game> - shareable invite link\n\n" +
		"Creator commands:\n" +
		"/create <basename> <stake> <max-players>\n" +
		"/setquestions <game> <ref> <a1..a15>\n" +
		"/startgame <game>\n\n" +
		"Answers are the buttons 1-3 under each question. " +
		fmt.Sprintf("You have %d seconds per question.", models.QuestionTimerSeconds)
	b.send(chatID, text, MainMenuKeyboard())
}

func (b *Bot) handleCreate(chatID int64, userID int64, args []string) {
	if len(args) != 3 {
		b.send(chatID, "Usage: /create <basename> <stake-tokens> <max-players>", nil)
		return
	}
	basename := security.SanitizeBasename(args[0])
	if !security.ValidateBasename(basename) {
		b.send(chatID, "That basename does not look valid.", nil)
		return
	}
	stake, err := utils.ParseTokens(args[1])
	if err != nil {
		b.send(chatID, "Stake must be a token amount, e.g. 10 or 12.5", nil)
		return
	}
	limit, err := strconv.Atoi(args[2])
	if err != nil {
		b.send(chatID, "Max players must be a number.", nil)
		return
	}

	game, err := b.registry.CreateInstance(account(userID), basename, "", stake, limit)
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("Game #%d created. Stake %s %s, up to %d players.\n"+
		"Set questions with /setquestions %d <ref> <a1..a15>",
		game.ID, utils.FormatTokens(game.StakeAmount), game.StakeAsset, game.PlayerLimit, game.ID), nil)
}

func (b *Bot) handleJoin(chatID int64, from *tgbotapi.User, args []string) {
	if len(args) < 3 {
		b.send(chatID, "Usage: /join <game> <basename> <handle> [referrer]", nil)
		return
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		b.send(chatID, "Game id must be a number.", nil)
		return
	}
	basename := security.SanitizeBasename(args[1])
	if !security.ValidateBasename(basename) {
		b.send(chatID, "That basename does not look valid.", nil)
		return
	}
	handle := security.SanitizeHandle(args[2])
	if !security.ValidateHandle(handle) {
		b.send(chatID, "That handle does not look valid.", nil)
		return
	}
	referrer := ""
	if len(args) > 3 {
		referrer = args[3]
	}

	player, err := b.games.Join(gameID, account(from.ID), basename, handle, referrer)
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	game, _ := b.games.GetInstance(gameID)
	text := fmt.Sprintf("You are in! Seat %d of game #%d.", player.JoinOrder, gameID)
	if game != nil {
		text += fmt.Sprintf(" Pool is now %s %s.", utils.FormatTokens(game.PrizePool), game.StakeAsset)
	}
	b.send(chatID, text, nil)
}

func (b *Bot) handleSetQuestions(chatID int64, userID int64, args []string) {
	if len(args) != 2+models.TotalQuestions {
		b.send(chatID, fmt.Sprintf("Usage: /setquestions <game> <ref> <%d answers, each 1-3>", models.TotalQuestions), nil)
		return
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		b.send(chatID, "Game id must be a number.", nil)
		return
	}
	answers := make([]int, 0, models.TotalQuestions)
	for _, raw := range args[2:] {
		code, err := strconv.Atoi(raw)
		if err != nil {
			b.send(chatID, "Answers must be numbers 1-3.", nil)
			return
		}
		answers = append(answers, code)
	}

	if err := b.games.SetQuestions(gameID, account(userID), args[1], answers); err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("Answer key stored for game #%d. Start with /startgame %d", gameID, gameID), nil)
}

func (b *Bot) handleStartGame(chatID int64, userID int64, args []string) {
	if len(args) != 1 {
		b.send(chatID, "Usage: /startgame <game>", nil)
		return
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		b.send(chatID, "Game id must be a number.", nil)
		return
	}
	if err := b.games.Start(gameID, account(userID)); err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("Game #%d is live. Question 1 of %d - answer within %d seconds!",
		gameID, models.TotalQuestions, models.QuestionTimerSeconds), AnswerKeyboard(gameID))
}

func (b *Bot) handleStatus(chatID int64, args []string) {
	if len(args) != 1 {
		b.send(chatID, "Usage: /status <game>", nil)
		return
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		b.send(chatID, "Game id must be a number.", nil)
		return
	}
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

	var sb strings.Builder
	fmt.Fprintf(&sb, "Game #%d (%s)\n", game.ID, game.State)
	fmt.Fprintf(&sb, "Stake: %s %s  Pool: %s %s\n",
		utils.FormatTokens(game.StakeAmount), game.StakeAsset,
		utils.FormatTokens(game.PrizePool), game.StakeAsset)
	fmt.Fprintf(&sb, "Players (%d/%d):\n", len(players), game.PlayerLimit)
	for _, p := range players {
		mark := fmt.Sprintf("question %d", p.Progress+1)
		if p.Finished() {
			mark = "finished"
		}
		if p.Eliminated {
			mark = "out (" + p.EliminationReason + ")"
		}
		fmt.Fprintf(&sb, "  %s (@%s) - %s\n", p.Basename, p.Handle, mark)
	}
	if game.IsEnded() {
		winners, err := b.games.GetWinners(gameID)
		if err == nil && len(winners) > 0 {
			sb.WriteString("Leaderboard:\n")
			for _, w := range winners {
				fmt.Fprintf(&sb, "  #%d %s - %s %s\n", w.Rank, w.Account, utils.FormatTokens(w.Prize), game.StakeAsset)
			}
		}
	}
	b.send(chatID, sb.String(), nil)
}

func (b *Bot) handleInvite(chatID int64, args []string) {
	if len(args) != 1 {
		b.send(chatID, "Usage: /invite <game>", nil)
		return
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		b.send(chatID, "Game id must be a number.", nil)
		return
	}
	if _, err := b.games.GetInstance(gameID); err != nil {
		b.sendAppError(chatID, err)
		return
	}
	token, err := security.GenerateInviteToken(gameID, "", b.config.JWTSecret)
	if err != nil {
		logger.Error("Failed to sign invite", "game_id", gameID, "error", err)
		b.send(chatID, "Could not create an invite right now.", nil)
		return
	}
	link := fmt.Sprintf("https://t.me/%s?start=%s", b.api.Self.UserName, token)
	b.send(chatID, "Share this link (valid 24h):\n"+link, nil)
}

func (b *Bot) handleAuthorize(chatID int64, userID int64, args []string, grant bool) {
	if len(args) != 1 {
		b.send(chatID, "Usage: /authorize <account> or /revoke <account>", nil)
		return
	}
	var err error
	if grant {
		err = b.registry.Authorize(account(userID), args[0])
	} else {
		err = b.registry.Revoke(account(userID), args[0])
	}
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	if grant {
		b.send(chatID, fmt.Sprintf("%s may now create games.", args[0]), nil)
	} else {
		b.send(chatID, fmt.Sprintf("%s may no longer create games.", args[0]), nil)
	}
}

func (b *Bot) handleSetAsset(chatID int64, userID int64, args []string) {
	if len(args) != 1 {
		b.send(chatID, "Usage: /setasset <asset>", nil)
		return
	}
	if err := b.registry.UpdateStakeAsset(account(userID), args[0]); err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("New games will stake %s.", args[0]), nil)
}

func (b *Bot) showLobby(chatID int64) {
	games, err := b.registry.ListOpenInstances()
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	if len(games) == 0 {
		b.send(chatID, "No open games right now. Create one with /create.", nil)
		return
	}
	b.send(chatID, "Open games:", GameListKeyboard(games))
}

func (b *Bot) showBalance(chatID int64, userID int64) {
	balance, err := b.tokens.BalanceOf(b.config.StakeAsset, account(userID))
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	b.send(chatID, fmt.Sprintf("Balance: %s %s", utils.FormatTokens(balance), b.config.StakeAsset), nil)
}

func (b *Bot) showBadges(chatID int64, userID int64) {
	badges, err := b.badges.GetBadgesByOwner(account(userID))
	if err != nil {
		b.sendAppError(chatID, err)
		return
	}
	if len(badges) == 0 {
		b.send(chatID, "No badges yet. Win a game to earn one!", nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Your badges:\n")
	for _, badge := range badges {
		fmt.Fprintf(&sb, "  🏅 #%d from game %d\n", badge.ID, badge.GameID)
	}
	b.send(chatID, sb.String(), nil)
}

func (b *Bot) notifyElimination(gameID uint, who string, result *services.AnswerResult) {
	logger.Info("Player eliminated", "game_id", gameID, "account", who, "reason", result.Reason)
	if chatID, ok := chatIDFor(who); ok {
		b.send(chatID, fmt.Sprintf("You are out of game #%d: %s.", gameID, humanReason(result.Reason)), nil)
	}
}

func (b *Bot) notifyGameEnded(gameID uint) {
	winners, err := b.games.GetWinners(gameID)
	if err != nil {
		return
	}
	game, err := b.games.GetInstance(gameID)
	if err != nil {
		return
	}
	for _, w := range winners {
		if chatID, ok := chatIDFor(w.Account); ok {
			b.send(chatID, fmt.Sprintf("Game #%d is over. You placed #%d and won %s %s!",
				gameID, w.Rank, utils.FormatTokens(w.Prize), game.StakeAsset), nil)
		}
	}
}

// chatIDFor recovers the Telegram chat behind a tg: principal. Other
// principal kinds (system, external accounts) have no chat.
func chatIDFor(principal string) (int64, bool) {
	raw, ok := strings.CutPrefix(principal, "tg:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func humanReason(reason string) string {
	switch reason {
	case models.EliminationIncorrectAnswer:
		return "wrong answer"
	case models.EliminationTimeLimit:
		return "time ran out"
	}
	return reason
}

func parseGameID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(raw, "#"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (b *Bot) send(chatID int64, text string, keyboard interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		logger.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

// sendAppError turns a service error into a user-facing message.
func (b *Bot) sendAppError(chatID int64, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		b.send(chatID, appErr.Message, nil)
		return
	}
	logger.Error("Unexpected error", "error", err)
	b.send(chatID, "Something went wrong, please try again.", nil)
}
