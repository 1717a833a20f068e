package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// /start [referrerID]: remembers who referred the user and shows the menu.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler handles /start.
type StartHandler struct {
	conversations giveaway.ConversationStore
	communityURL  string
	logger        *slog.Logger
}

// NewStartHandler creates a StartHandler. communityURL may be empty.
func NewStartHandler(conversations giveaway.ConversationStore, communityURL string, logger *slog.Logger) *StartHandler {
	return &StartHandler{
		conversations: conversations,
		communityURL:  communityURL,
		logger:        loggerOrDefault(logger).With("handler", "start"),
	}
}

// ParseReferralArg returns the referrer encoded in the /start argument.
// Anything but a positive integer yields false.
func ParseReferralArg(args string) (giveaway.UserID, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return giveaway.UserID(id), true
}

// Handle processes /start.
func (h *StartHandler) Handle(ctx context.Context, req *Request) error {
	if !req.IsMessage() {
		return nil
	}

	if referrer, ok := ParseReferralArg(req.Args); ok && referrer != req.UserID {
		if err := h.rememberReferrer(ctx, req.UserID, referrer); err != nil {
			// The welcome still goes out; only the credit is lost.
			h.logger.Warn("failed to store referrer",
				"telegram_id", req.UserID,
				"referrer_id", referrer,
				"error", err,
			)
		}
	}

	return req.Reply(ctx, Response{
		Text:      presenter.WelcomeText(req.FirstName),
		ParseMode: telegram.ParseModeMarkdownV2,
		Keyboard:  presenter.StartKeyboard(h.communityURL),
	})
}

func (h *StartHandler) rememberReferrer(ctx context.Context, userID, referrer giveaway.UserID) error {
	conv, err := h.conversations.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	conv.ReferrerID = &referrer
	if err := h.conversations.Save(ctx, userID, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
