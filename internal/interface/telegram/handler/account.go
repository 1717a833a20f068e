package handler

import (
	"context"
	"log/slog"

	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT HANDLERS
// Read-only views: /balance, /leaderboard, /history, /faq.
// ══════════════════════════════════════════════════════════════════════════════

// AccountHandler serves the read-only user commands.
type AccountHandler struct {
	lifecycle        *app.Lifecycle
	ledger           *app.Ledger
	identity         BotIdentity
	leaderboardLimit int
	logger           *slog.Logger
}

// NewAccountHandler creates an AccountHandler. A non-positive limit uses
// the ledger default.
func NewAccountHandler(lifecycle *app.Lifecycle, ledger *app.Ledger, identity BotIdentity, leaderboardLimit int, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		lifecycle:        lifecycle,
		ledger:           ledger,
		identity:         identity,
		leaderboardLimit: leaderboardLimit,
		logger:           loggerOrDefault(logger).With("handler", "account"),
	}
}

// Balance shows the user's entry in the open event.
func (h *AccountHandler) Balance(ctx context.Context, req *Request) error {
	event, err := h.lifecycle.OpenEvent(ctx)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	if event == nil {
		return req.ReplyText(ctx, presenter.NoActiveEventHint)
	}

	entry, err := h.ledger.Entry(ctx, req.UserID, event.ID)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	if entry == nil {
		return req.ReplyText(ctx, presenter.NotJoinedText(event.Name))
	}

	link := referralLink(ctx, h.identity, h.logger, req.UserID)
	return req.ReplyText(ctx, presenter.BalanceText(event.Name, entry, link))
}

// Leaderboard shows the top referrers of the open event.
func (h *AccountHandler) Leaderboard(ctx context.Context, req *Request) error {
	event, err := h.lifecycle.OpenEvent(ctx)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	if event == nil {
		return req.ReplyText(ctx, presenter.NoActiveEvent)
	}

	standings, err := h.ledger.Standings(ctx, event.ID, h.leaderboardLimit)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	return req.ReplyText(ctx, presenter.FormatLeaderboard(event.Name, standings))
}

// History lists every event the user entered.
func (h *AccountHandler) History(ctx context.Context, req *Request) error {
	items, err := h.ledger.History(ctx, req.UserID)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	return req.ReplyText(ctx, presenter.FormatHistory(items))
}

// FAQ shows the rules.
func (h *AccountHandler) FAQ(ctx context.Context, req *Request) error {
	return req.ReplyText(ctx, presenter.FAQ)
}
