// Package handler contains the Telegram command and callback handlers.
// Each handler follows the same path: read the request, call the
// application layer, format the reply with the presenter.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE
// ══════════════════════════════════════════════════════════════════════════════

// Response is one outgoing message.
type Response struct {
	Text      string
	ParseMode string
	Keyboard  *telegram.InlineKeyboardMarkup
}

// Responder delivers responses. The bot implements it over the Bot API;
// tests record the calls.
type Responder interface {
	Send(ctx context.Context, chatID int64, resp Response) error
	Edit(ctx context.Context, chatID, messageID int64, resp Response) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Request is a normalized update: a command, a plain text message or a
// button press.
type Request struct {
	UpdateID  int64
	UserID    giveaway.UserID
	ChatID    int64
	Username  string
	FirstName string

	// Command is set for commands, without the slash. Args is the rest of the text.
	Command string
	Args    string

	// Text is the raw message text.
	Text string

	// CallbackID and CallbackData are set for button presses. MessageID is
	// the message carrying the button.
	CallbackID   string
	CallbackData string
	MessageID    int64

	Responder Responder
}

// IsCallback reports whether the request is a button press.
func (r *Request) IsCallback() bool {
	return r.CallbackID != ""
}

// IsMessage reports whether the request came from a message.
func (r *Request) IsMessage() bool {
	return !r.IsCallback()
}

// Reply acknowledges a pending button press and sends resp to the chat.
// A failed acknowledgement does not stop the reply.
func (r *Request) Reply(ctx context.Context, resp Response) error {
	if r.IsCallback() {
		_ = r.Responder.AnswerCallback(ctx, r.CallbackID)
	}
	if r.ChatID == 0 {
		return nil
	}
	return r.Responder.Send(ctx, r.ChatID, resp)
}

// ReplyText is Reply with plain text.
func (r *Request) ReplyText(ctx context.Context, text string) error {
	return r.Reply(ctx, Response{Text: text})
}

// Edit acknowledges the button press and replaces the message carrying the
// button. Without such a message it sends a new one.
func (r *Request) Edit(ctx context.Context, resp Response) error {
	if !r.IsCallback() || r.MessageID == 0 {
		return r.Reply(ctx, resp)
	}
	_ = r.Responder.AnswerCallback(ctx, r.CallbackID)
	return r.Responder.Edit(ctx, r.ChatID, r.MessageID, resp)
}

// Ack acknowledges a button press without replying.
func (r *Request) Ack(ctx context.Context) error {
	if !r.IsCallback() {
		return nil
	}
	return r.Responder.AnswerCallback(ctx, r.CallbackID)
}

// fail sends text and returns cause together with any delivery error, so the
// bot logs and counts the failure.
func (r *Request) fail(ctx context.Context, text string, cause error) error {
	return errors.Join(cause, r.ReplyText(ctx, text))
}

// BotIdentity resolves the bot's public username for referral links.
type BotIdentity interface {
	BotUsername(ctx context.Context) (string, error)
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
