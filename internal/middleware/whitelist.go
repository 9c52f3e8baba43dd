package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type WhitelistMiddleware struct {
	logger             *slog.Logger
	operatorAllowedIDs []int64
}

func NewWhitelistMiddleware(operatorAllowedIDs []int64, logger *slog.Logger) *WhitelistMiddleware {
	return &WhitelistMiddleware{
		operatorAllowedIDs: operatorAllowedIDs,
		logger:             logger,
	}
}

func (wm *WhitelistMiddleware) IsOperatorAllowed(operatorID int64) bool {
	return slices.Contains(wm.operatorAllowedIDs, operatorID)
}

// allow reports whether the update may reach the handler. Rejected senders are
// told so in their chat.
func (wm *WhitelistMiddleware) allow(ctx context.Context, s messageSender, update *models.Update) bool {
	var operatorID, chatID int64
	var username string
	if update.Message != nil && update.Message.From != nil {
		operatorID = update.Message.From.ID
		chatID = update.Message.Chat.ID
		username = update.Message.From.Username
	} else if update.CallbackQuery != nil {
		operatorID = update.CallbackQuery.From.ID
		chatID = update.CallbackQuery.From.ID
		username = update.CallbackQuery.From.Username
	} else {
		return true
	}

	if wm.IsOperatorAllowed(operatorID) {
		return true
	}
	wm.logger.Warn(fmt.Sprintf("operator %s (ID %d) is not in the whitelist", username, operatorID))

	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		Text:   "You are not allowed to control this junction",
		ChatID: chatID,
	})
	if err != nil {
		wm.logger.Error(err.Error())
	}
	return false
}

func WithWhitelist(whitelist *WhitelistMiddleware, handler bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if !whitelist.allow(ctx, b, update) {
			return
		}
		handler(ctx, b, update)
	}
}
