package giveaway

import (
	"fmt"
	"strings"
	"time"

	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// EventID is the creator-assigned event identifier.
type EventID int64

// IsValid returns true for positive IDs.
func (id EventID) IsValid() bool {
	return id > 0
}

// UserID is a Telegram user identifier.
type UserID int64

// IsValid returns true for positive IDs.
func (id UserID) IsValid() bool {
	return id > 0
}

// DisplayName returns the name snapshot stored with an entry.
// Users without a public username are shown as User_<id>.
func DisplayName(userID UserID, username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return fmt.Sprintf("User_%d", userID)
	}
	return username
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is a time-boxed giveaway.
type Event struct {
	ID   EventID
	Name string

	// EndDate is the raw stored end timestamp ("2025-01-31T23:59:59Z").
	// It is parsed on demand so that a malformed value surfaces as a
	// data integrity error at the point of use.
	EndDate string

	IsActive bool
}

// NewEvent builds an active event that closes at the end of the given day (UTC).
func NewEvent(id EventID, name string, endDay time.Time) (*Event, error) {
	if !id.IsValid() {
		return nil, shared.WrapError("giveaway", "NewEvent", shared.ErrInvalidID, "event ID must be positive", nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.WrapError("giveaway", "NewEvent", shared.ErrEmptyValue, "event name is required", nil)
	}
	return &Event{
		ID:       id,
		Name:     name,
		EndDate:  timeutil.FormatEndDate(endDay),
		IsActive: true,
	}, nil
}

// ClosesAt returns the instant after which the event is no longer open.
func (e *Event) ClosesAt() (time.Time, error) {
	t, err := timeutil.ParseEndDate(e.EndDate)
	if err != nil {
		return time.Time{}, shared.WrapError("giveaway", "ClosesAt", shared.ErrMalformedEndDate,
			fmt.Sprintf("event %d has malformed end date", e.ID), err)
	}
	return t, nil
}

// HasEnded reports whether now is strictly after the event's closing instant.
func (e *Event) HasEnded(now time.Time) (bool, error) {
	closesAt, err := e.ClosesAt()
	if err != nil {
		return false, err
	}
	return now.UTC().After(closesAt), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one user's registration in one event.
type Entry struct {
	UserID        UserID
	EventID       EventID
	Username      string
	WalletAddress string
	ReferredBy    *UserID
	ReferralCount int
	CreatedAt     time.Time
}

// TotalTickets returns the number of draw tickets the entry holds.
func (e *Entry) TotalTickets() int {
	return 1 + e.ReferralCount
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// Standing is one row of an event leaderboard.
type Standing struct {
	Username      string
	ReferralCount int
}

// HistoryItem summarizes one of a user's entries across events.
type HistoryItem struct {
	EventID       EventID
	EventName     string
	IsActive      bool
	ReferralCount int
}

// Winner is a row returned by the draw procedure.
type Winner struct {
	Username      string
	WalletAddress string
}

// EventStats is the admin dashboard summary of one event.
type EventStats struct {
	Event        *Event
	Participants int
	Referrals    int
}

// TotalTickets returns participants + referrals, i.e. the sum of all entries' tickets.
func (s EventStats) TotalTickets() int {
	return s.Participants + s.Referrals
}
