package presenter

import (
	"fmt"
	"strings"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
)

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS, HISTORY AND WINNERS
// Ranked lists share one layout: a header, a blank line, one row per item.
// ══════════════════════════════════════════════════════════════════════════════

const (
	unknownStandingUser = "unknown_user"
	unknownWinnerUser   = "unknown"
	unknownWallet       = "n/a"
)

// LeaderboardEmpty is shown when nobody has entered the open event.
const LeaderboardEmpty = "Leaderboard is empty. Be the first to invite someone."

// FormatLeaderboard renders the top referrers of an event.
func FormatLeaderboard(eventName string, standings []giveaway.Standing) string {
	if len(standings) == 0 {
		return LeaderboardEmpty
	}

	lines := make([]string, 0, len(standings)+2)
	lines = append(lines, "Top referrers: "+eventName, "")
	for i, s := range standings {
		name := s.Username
		if name == "" {
			name = unknownStandingUser
		}
		lines = append(lines, fmt.Sprintf("%d. @%s - %d referrals", i+1, name, s.ReferralCount))
	}
	return strings.Join(lines, "\n")
}

// HistoryEmpty is shown to users without any entry.
const HistoryEmpty = "You have not participated in any events yet."

// FormatHistory renders a user's entries across events.
func FormatHistory(items []giveaway.HistoryItem) string {
	if len(items) == 0 {
		return HistoryEmpty
	}

	lines := make([]string, 0, len(items)+2)
	lines = append(lines, "Your Amazo-World history", "")
	for _, item := range items {
		status := "Closed"
		if item.IsActive {
			status = "Active"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %d referrals", item.EventName, status, item.ReferralCount))
	}
	return strings.Join(lines, "\n")
}

// FormatWinners renders the result of a draw.
func FormatWinners(eventID giveaway.EventID, winners []giveaway.Winner) string {
	if len(winners) == 0 {
		return fmt.Sprintf("No entries found for Event #%d.", eventID)
	}

	lines := make([]string, 0, len(winners)+2)
	lines = append(lines, fmt.Sprintf("Event #%d winners", eventID), "")
	for i, w := range winners {
		name, wallet := w.Username, w.WalletAddress
		if name == "" {
			name = unknownWinnerUser
		}
		if wallet == "" {
			wallet = unknownWallet
		}
		lines = append(lines, fmt.Sprintf("%d. @%s - %s", i+1, name, wallet))
	}
	return strings.Join(lines, "\n")
}
