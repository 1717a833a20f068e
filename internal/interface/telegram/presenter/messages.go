package presenter

import (
	"fmt"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// Fixed texts.
const (
	NoActiveGiveaway   = "No active giveaway at the moment."
	NoActiveEvent      = "No active event."
	NoActiveEventHint  = "No active event. Use /history to see previous entries."
	WalletPrompt       = "Terms accepted. Send your Solana or Ethereum wallet address:"
	InvalidWallet      = "That does not look like a valid SOL or ETH address. Please try again:"
	RegistrationFailed = "Could not save your registration right now. Please try again in a minute."
	RegistrationCancel = "Registration cancelled."
	TemporaryFailure   = "Something went wrong. Please try again in a minute."
	SlowDown           = "Too many requests. Please slow down."

	FAQ = "Amazo-World FAQ\n\n" +
		"How to enter: Use /enter and follow the steps.\n" +
		"Referrals: Get your link with /balance.\n" +
		"Winners: Drawn per event using weighted tickets.\n" +
		"Wallets: SOL and ETH format accepted.\n\n" +
		"Need help? Contact an admin."

	CommandList = "Available commands:\n" +
		"/start - welcome menu\n" +
		"/enter - join the current giveaway\n" +
		"/balance - your entry and referral link\n" +
		"/leaderboard - top referrers\n" +
		"/history - your past events\n" +
		"/faq - rules and answers\n" +
		"/cancel - stop registration"
)

// WelcomeText greets a user by first name. The result is MarkdownV2.
func WelcomeText(firstName string) string {
	return "Welcome to Amazo-World, " + EscapeMarkdownV2(firstName) + "\\!\n\n" +
		"Referral based giveaways with transparent winner selection\\.\n" +
		"Use the buttons below to begin\\."
}

// TermsText asks the user to accept the rules of an event.
func TermsText(eventName string) string {
	return "Entering: " + eventName + "\n\n" +
		"Please read and accept the terms:\n" +
		"1) No botting or multiple accounts.\n" +
		"2) Wallet address cannot be changed later.\n" +
		"3) This is not financial advice.\n\n" +
		"Do you accept the terms?"
}

// RegisteredText confirms a registration and hands out the referral link.
// Without a link the user is pointed to /balance.
func RegisteredText(eventID giveaway.EventID, link string) string {
	if link == "" {
		return fmt.Sprintf("Successfully registered for Event #%d.\n\nUse /balance to get your referral link.", eventID)
	}
	return fmt.Sprintf("Successfully registered for Event #%d.\n\nYour referral link:\n%s", eventID, link)
}

// AlreadyRegisteredText is shown on a second registration attempt.
func AlreadyRegisteredText(eventID giveaway.EventID) string {
	return fmt.Sprintf("You are already registered for Event #%d. Use /balance to see your referral link.", eventID)
}

// NotJoinedText is shown by /balance to users without an entry.
func NotJoinedText(eventName string) string {
	return fmt.Sprintf("You have not joined %s yet. Use /enter.", eventName)
}

// BalanceText summarizes the user's entry in the open event.
func BalanceText(eventName string, entry *giveaway.Entry, link string) string {
	return fmt.Sprintf("Current event: %s\nWallet: %s\nReferrals: %d\nTotal tickets: %d\n\nYour link: %s",
		eventName, entry.WalletAddress, entry.ReferralCount, entry.TotalTickets(), link)
}

// ReferralLink builds the deep link that credits userID.
func ReferralLink(botUsername string, userID giveaway.UserID) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

const (
	AdminNoActiveEvent = "No active event. Launch one with /new_event."
	NewEventUsage      = "Use format: /new_event ID | Name | YYYY-MM-DD"
	NewEventFailed     = "Could not create event right now. Try again."
	PickUsage          = "Provide an event ID. Example: /pick 1"
	PickBadID          = "Event ID must be an integer."
	PickFailed         = "Could not draw winners right now. Try again."
	BroadcastUsage     = "Usage: /broadcast [message]"
	BroadcastFailed    = "Could not load participants right now. Try again."
)

// DashboardText renders the admin summary of the open event.
func DashboardText(stats giveaway.EventStats) string {
	return fmt.Sprintf("ADMIN DASHBOARD\nCurrent: %s (ID: %d)\nParticipants: %d\nReferrals: %d\nTotal tickets: %d",
		stats.Event.Name, stats.Event.ID, stats.Participants, stats.Referrals, stats.TotalTickets())
}

// EventCreatedText confirms a new event.
func EventCreatedText(event *giveaway.Event, endDate string) string {
	return fmt.Sprintf("Event #%d '%s' is live until %s.", event.ID, event.Name, endDate)
}

// EventExistsText is shown when the admin reuses an event ID.
func EventExistsText(eventID giveaway.EventID) string {
	return fmt.Sprintf("Event #%d already exists. Pick a new ID. All events are now inactive.", eventID)
}

// BroadcastStartText announces a broadcast before it runs.
func BroadcastStartText(recipients int) string {
	return fmt.Sprintf("Broadcasting to %d users...", recipients)
}

// BroadcastDoneText reports the outcome of a broadcast.
func BroadcastDoneText(sent, failed int) string {
	return fmt.Sprintf("Broadcast done.\nSent: %d\nFailed: %d", sent, failed)
}
