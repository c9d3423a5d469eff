package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cycle-tracker/internal/config"
	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/insight"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/tracker"
)

const processTimeout = 30 * time.Second

// botAPI is the subset of *tgbotapi.BotAPI the bot relies on.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Bot wraps the Telegram API and the tracker service.
type Bot struct {
	api      botAPI
	tracker  *tracker.Service
	shares   *share.Issuer
	narrator *insight.Narrator
	runs     *metrics.Store
	cfg      *config.Config
	logger   *zap.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(
	cfg *config.Config,
	svc *tracker.Service,
	shares *share.Issuer,
	narrator *insight.Narrator,
	runs *metrics.Store,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))

	return newBot(api, cfg, svc, shares, narrator, runs, logger), nil
}

func newBot(
	api botAPI,
	cfg *config.Config,
	svc *tracker.Service,
	shares *share.Issuer,
	narrator *insight.Narrator,
	runs *metrics.Store,
	logger *zap.Logger,
) *Bot {
	return &Bot{
		api:      api,
		tracker:  svc,
		shares:   shares,
		narrator: narrator,
		runs:     runs,
		cfg:      cfg,
		logger:   logger,
	}
}

// WebhookHandler returns the handler Telegram posts updates to. Updates are
// processed in the background so Telegram gets an immediate 200.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("failed to parse update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)

		switch {
		case update.CallbackQuery != nil:
			if !b.isAllowed(update.CallbackQuery.From) {
				return
			}
			go b.withTimeout(func(ctx context.Context) { b.handleCallbackQuery(ctx, update.CallbackQuery) })
		case update.Message != nil:
			if !b.isAllowed(update.Message.From) {
				return
			}
			msg := update.Message
			go b.withTimeout(func(ctx context.Context) { b.processMessage(ctx, msg) })
		}
	}
}

func (b *Bot) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	fn(ctx)
}

func (b *Bot) isAllowed(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if from.ID == id {
			return true
		}
	}
	b.logger.Warn("unauthorized access attempt",
		zap.Int64("telegram_id", from.ID),
		zap.String("username", from.UserName),
	)
	return false
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	command, args := splitCommand(msg.Text)
	switch command {
	case "/start", "/help":
		b.reply(chatID, helpText)
	case "/log":
		b.handleLog(ctx, chatID, userID, args)
	case "/unlog":
		b.handleUnlog(chatID, args)
	case "/predict":
		b.handlePredict(ctx, chatID, userID)
	case "/phase":
		b.handlePhase(ctx, chatID, userID)
	case "/share":
		b.handleShare(chatID, userID)
	case "/unshare":
		b.handleUnshare(ctx, chatID, userID, args)
	case "/insight":
		b.handleInsight(ctx, chatID, userID)
	case "/metrics":
		if msg.From.ID != b.cfg.AdminTelegramID {
			b.reply(chatID, "⛔ *Access Denied*: Admin only.")
			return
		}
		b.handleMetricsCommand(ctx, chatID)
	default:
		b.reply(chatID, "🤔 I did not understand that. Send /help for the list of commands.")
	}
}

func (b *Bot) handleLog(ctx context.Context, chatID int64, userID, args string) {
	log, err := parseLogArgs(args, b.tracker.Today())
	if err != nil {
		b.reply(chatID, "❌ "+escape(err.Error()))
		return
	}

	if err := b.tracker.RecordDay(ctx, userID, log); err != nil {
		if errors.Is(err, tracker.ErrInvalidLog) {
			b.reply(chatID, "❌ "+escape(err.Error()))
			return
		}
		b.logger.Error("failed to record day", zap.String("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not save your log, please try again.")
		return
	}

	b.reply(chatID, formatLogged(log))
}

func (b *Bot) handleUnlog(chatID int64, args string) {
	day, err := parseDayArg(strings.TrimSpace(args), b.tracker.Today())
	if err != nil {
		b.reply(chatID, "❌ Usage: /unlog YYYY-MM-DD")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Remove", callbackUnlog+"|"+day.String()),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", callbackKeep+"|"+day.String()),
		),
	)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Remove the log for *%s*?", day))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard
	b.send(msg)
}

const (
	callbackUnlog = "unlog"
	callbackKeep  = "keep"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}

	action, rawDay, ok := strings.Cut(query.Data, "|")
	if !ok {
		return
	}
	day, err := cycle.ParseDate(rawDay)
	if err != nil {
		return
	}

	userID := strconv.FormatInt(query.From.ID, 10)
	var text string
	switch action {
	case callbackUnlog:
		err := b.tracker.RemoveDay(ctx, userID, day)
		switch {
		case errors.Is(err, dailylog.ErrNotFound):
			text = fmt.Sprintf("Nothing was logged on *%s*.", day)
		case err != nil:
			b.logger.Error("failed to remove day", zap.String("user_id", userID), zap.Error(err))
			text = "❌ Could not remove the log, please try again."
		default:
			text = fmt.Sprintf("🗑 Removed the log for *%s*.", day)
		}
	case callbackKeep:
		text = fmt.Sprintf("↩️ Kept the log for *%s*.", day)
	default:
		return
	}

	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.send(edit)
}

func (b *Bot) handlePredict(ctx context.Context, chatID int64, userID string) {
	result, ok := b.predict(ctx, chatID, userID)
	if !ok {
		return
	}
	b.reply(chatID, formatPredictionMarkdown(result))
}

func (b *Bot) handlePhase(ctx context.Context, chatID int64, userID string) {
	result, ok := b.predict(ctx, chatID, userID)
	if !ok {
		return
	}
	b.reply(chatID, formatPhaseMarkdown(result))
}

func (b *Bot) handleInsight(ctx context.Context, chatID int64, userID string) {
	result, ok := b.predict(ctx, chatID, userID)
	if !ok {
		return
	}
	narrative := b.narrator.Describe(ctx, result.Prediction, result.Today)
	b.send(tgbotapi.NewMessage(chatID, narrative.Text))
}

func (b *Bot) predict(ctx context.Context, chatID int64, userID string) (tracker.Result, bool) {
	result, err := b.tracker.Predict(ctx, userID)
	if err != nil {
		b.logger.Error("failed to predict", zap.String("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not compute your prediction, please try again.")
		return tracker.Result{}, false
	}
	return result, true
}

func (b *Bot) handleShare(chatID int64, userID string) {
	token, claims, err := b.shares.Issue(userID)
	if err != nil {
		b.logger.Error("failed to issue share token", zap.String("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not create a share link.")
		return
	}
	b.reply(chatID, formatShareMarkdown(shareLink(b.cfg.PublicURL, token), token, claims.ExpiresAt))
}

func (b *Bot) handleUnshare(ctx context.Context, chatID int64, userID, args string) {
	token := strings.TrimSpace(args)
	if token == "" {
		b.reply(chatID, "❌ Usage: /unshare TOKEN")
		return
	}

	claims, err := b.shares.Verify(ctx, token)
	if err != nil || claims.UserID != userID {
		b.reply(chatID, "❌ That link is not valid or was already revoked.")
		return
	}
	if err := b.shares.Revoke(ctx, claims); err != nil {
		b.logger.Error("failed to revoke share", zap.String("user_id", userID), zap.Error(err))
		b.reply(chatID, "❌ Could not revoke the link, please try again.")
		return
	}
	b.reply(chatID, "🔒 Link revoked.")
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	activity, err := b.runs.GetDailyActivity(ctx, 7)
	if err != nil {
		b.logger.Error("failed to fetch metrics", zap.Error(err))
		b.reply(chatID, "❌ Error fetching metrics.")
		return
	}

	health := metrics.GetSysHealth(filepath.Dir(b.cfg.DatabasePath), b.cfg.ArchivePath)
	b.reply(chatID, formatMetricsMarkdown(activity, health))
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("failed to send telegram message", zap.Error(err))
	}
}
