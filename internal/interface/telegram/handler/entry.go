package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY CONVERSATION
// /enter → terms (TERMS) → wallet (WALLET) → registered.
// The step lives in the conversation store so any replica can continue it.
// ══════════════════════════════════════════════════════════════════════════════

// EntryConfig contains the collaborators of the EntryHandler.
type EntryConfig struct {
	Lifecycle     *app.Lifecycle
	Ledger        *app.Ledger
	Conversations giveaway.ConversationStore
	Identity      BotIdentity

	// OnRegistration observes every registration attempt.
	OnRegistration func(err error)

	Logger *slog.Logger
}

// EntryHandler runs the registration conversation.
type EntryHandler struct {
	lifecycle      *app.Lifecycle
	ledger         *app.Ledger
	conversations  giveaway.ConversationStore
	identity       BotIdentity
	onRegistration func(err error)
	logger         *slog.Logger
}

// NewEntryHandler creates an EntryHandler.
func NewEntryHandler(config EntryConfig) *EntryHandler {
	if config.OnRegistration == nil {
		config.OnRegistration = func(error) {}
	}
	return &EntryHandler{
		lifecycle:      config.Lifecycle,
		ledger:         config.Ledger,
		conversations:  config.Conversations,
		identity:       config.Identity,
		onRegistration: config.OnRegistration,
		logger:         loggerOrDefault(config.Logger).With("handler", "entry"),
	}
}

// Enter starts, or restarts, the conversation for the open event.
func (h *EntryHandler) Enter(ctx context.Context, req *Request) error {
	conv, err := h.conversations.Get(ctx, req.UserID)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, fmt.Errorf("entry: load conversation: %w", err))
	}

	event, err := h.lifecycle.OpenEvent(ctx)
	if err != nil {
		return errors.Join(h.end(ctx, req.UserID, conv), req.fail(ctx, presenter.TemporaryFailure, err))
	}
	if event == nil {
		return errors.Join(h.end(ctx, req.UserID, conv), req.ReplyText(ctx, presenter.NoActiveGiveaway))
	}

	conv.Step = giveaway.StepTerms
	conv.EventID = event.ID
	if err := h.conversations.Save(ctx, req.UserID, conv); err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, fmt.Errorf("entry: save conversation: %w", err))
	}

	return req.Reply(ctx, Response{
		Text:     presenter.TermsText(event.Name),
		Keyboard: presenter.TermsKeyboard(),
	})
}

// AcceptTerms moves from TERMS to WALLET. Presses outside TERMS are only
// acknowledged.
func (h *EntryHandler) AcceptTerms(ctx context.Context, req *Request) error {
	conv, err := h.conversations.Get(ctx, req.UserID)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, fmt.Errorf("entry: load conversation: %w", err))
	}
	if conv.Step != giveaway.StepTerms {
		return req.Ack(ctx)
	}

	conv.Step = giveaway.StepWallet
	if err := h.conversations.Save(ctx, req.UserID, conv); err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, fmt.Errorf("entry: save conversation: %w", err))
	}
	return req.Edit(ctx, Response{Text: presenter.WalletPrompt})
}

// Wallet consumes a text message. It reports false when the user is not
// waiting for a wallet, leaving the message unhandled.
func (h *EntryHandler) Wallet(ctx context.Context, req *Request) (bool, error) {
	conv, err := h.conversations.Get(ctx, req.UserID)
	if err != nil {
		return false, fmt.Errorf("entry: load conversation: %w", err)
	}
	if conv.Step != giveaway.StepWallet {
		return false, nil
	}

	// The event chosen at /enter may have closed or been replaced since.
	event, err := h.lifecycle.OpenEvent(ctx)
	if err != nil {
		return true, errors.Join(h.end(ctx, req.UserID, conv), req.fail(ctx, presenter.TemporaryFailure, err))
	}
	if event == nil || event.ID != conv.EventID {
		h.logger.Info("conversation event no longer open",
			"telegram_id", req.UserID,
			"event_id", conv.EventID,
		)
		return true, errors.Join(h.end(ctx, req.UserID, conv), req.ReplyText(ctx, presenter.NoActiveGiveaway))
	}

	entry, err := h.ledger.RegisterEntry(ctx, app.RegisterEntryInput{
		UserID:        req.UserID,
		EventID:       event.ID,
		Username:      req.Username,
		WalletAddress: strings.TrimSpace(req.Text),
		ReferrerID:    conv.ReferrerID,
	})
	h.onRegistration(err)

	switch {
	case err == nil:
	case entry != nil && errors.Is(err, shared.ErrReferralNotCounted):
		// The entry exists; the user should not register again.
		h.logger.Warn("referral not credited",
			"telegram_id", req.UserID,
			"event_id", conv.EventID,
			"error", err,
		)
	case errors.Is(err, shared.ErrInvalidWallet):
		return true, req.ReplyText(ctx, presenter.InvalidWallet)
	case errors.Is(err, shared.ErrAlreadyRegistered):
		return true, errors.Join(h.end(ctx, req.UserID, conv),
			req.ReplyText(ctx, presenter.AlreadyRegisteredText(conv.EventID)))
	default:
		return true, errors.Join(h.end(ctx, req.UserID, conv),
			req.fail(ctx, presenter.RegistrationFailed, err))
	}

	endErr := h.end(ctx, req.UserID, conv)
	return true, errors.Join(endErr, req.ReplyText(ctx, presenter.RegisteredText(entry.EventID, h.referralLink(ctx, req.UserID))))
}

// Cancel leaves the conversation. Outside a conversation it does nothing.
func (h *EntryHandler) Cancel(ctx context.Context, req *Request) error {
	conv, err := h.conversations.Get(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("entry: load conversation: %w", err)
	}
	if !conv.Active() {
		return nil
	}
	return errors.Join(h.end(ctx, req.UserID, conv), req.ReplyText(ctx, presenter.RegistrationCancel))
}

func (h *EntryHandler) end(ctx context.Context, userID giveaway.UserID, conv *giveaway.Conversation) error {
	if !conv.Active() {
		return nil
	}
	conv.End()
	if err := h.conversations.Save(ctx, userID, conv); err != nil {
		return fmt.Errorf("entry: end conversation: %w", err)
	}
	return nil
}

// referralLink returns the user's link, or "" when the bot name is unknown.
func (h *EntryHandler) referralLink(ctx context.Context, userID giveaway.UserID) string {
	return referralLink(ctx, h.identity, h.logger, userID)
}

func referralLink(ctx context.Context, identity BotIdentity, logger *slog.Logger, userID giveaway.UserID) string {
	name, err := identity.BotUsername(ctx)
	if err != nil {
		logger.Warn("bot username unavailable", "error", err)
		return ""
	}
	return presenter.ReferralLink(name, userID)
}
