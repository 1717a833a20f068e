// Package presenter formats giveaway data for Telegram display.
// Presenters turn domain values into message texts and inline keyboards.
package presenter

import (
	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
)

// Callback data of the inline buttons.
const (
	CallbackStartEntry  = "start_entry"
	CallbackAcceptTerms = "accept_terms"
	CallbackShowFAQ     = "show_faq"
	CallbackShowBoard   = "show_lb"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDING
// ══════════════════════════════════════════════════════════════════════════════

// Keyboard builds an inline keyboard row by row.
type Keyboard struct {
	rows [][]telegram.InlineKeyboardButton
}

// NewKeyboard creates an empty keyboard.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Row appends a row of buttons.
func (k *Keyboard) Row(buttons ...telegram.InlineKeyboardButton) *Keyboard {
	if len(buttons) > 0 {
		k.rows = append(k.rows, buttons)
	}
	return k
}

// Markup returns the reply markup, or nil for an empty keyboard.
func (k *Keyboard) Markup() *telegram.InlineKeyboardMarkup {
	if len(k.rows) == 0 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: k.rows}
}

// CallbackButton creates a callback button.
func CallbackButton(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

// URLButton creates a link button.
func URLButton(text, url string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, URL: url}
}

// ─────────────────────────────────────────────────────────────────────────────
// Keyboards
// ─────────────────────────────────────────────────────────────────────────────

// StartKeyboard is attached to the welcome message. The community link row
// is omitted when communityURL is empty.
func StartKeyboard(communityURL string) *telegram.InlineKeyboardMarkup {
	k := NewKeyboard()
	if communityURL != "" {
		k.Row(URLButton("Join Community", communityURL))
	}
	return k.
		Row(CallbackButton("Enter Giveaway", CallbackStartEntry)).
		Row(CallbackButton("FAQ and Rules", CallbackShowFAQ)).
		Row(CallbackButton("Leaderboard", CallbackShowBoard)).
		Markup()
}

// TermsKeyboard is attached to the terms message.
func TermsKeyboard() *telegram.InlineKeyboardMarkup {
	return NewKeyboard().
		Row(CallbackButton("I Accept", CallbackAcceptTerms)).
		Markup()
}
