package giveaway

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The contract of the durable store. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the data store used by the lifecycle and ledger services.
//
// Errors are classified with the shared taxonomy: unreachable store or
// timeout wraps shared.ErrServiceUnavailable, duplicate keys wrap
// shared.ErrAlreadyExists, and rows that cannot be interpreted wrap
// shared.ErrDataIntegrity.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Events
	// ─────────────────────────────────────────────────────────────────────────

	// FetchActiveEvent returns the active event, or nil if there is none.
	// Returns shared.ErrMultipleOpenEvents if more than one row is active.
	FetchActiveEvent(ctx context.Context) (*Event, error)

	// SetEventActive sets the active flag of one event. Idempotent.
	SetEventActive(ctx context.Context, eventID EventID, active bool) error

	// DeactivateAllEvents clears the active flag on every event.
	DeactivateAllEvents(ctx context.Context) error

	// CreateEvent inserts a new event.
	// Returns shared.ErrEventExists if the ID is taken.
	CreateEvent(ctx context.Context, event *Event) error

	// ─────────────────────────────────────────────────────────────────────────
	// Entries
	// ─────────────────────────────────────────────────────────────────────────

	// InsertEntry inserts a new entry with zero referrals.
	// Returns shared.ErrAlreadyRegistered if (user, event) already exists.
	InsertEntry(ctx context.Context, entry *Entry) error

	// IncrementReferral adds one referral to the referrer's entry in the event.
	// A missing entry is not an error and changes nothing.
	IncrementReferral(ctx context.Context, referrerID UserID, eventID EventID) error

	// GetEntry returns the entry for (user, event), or nil if absent.
	GetEntry(ctx context.Context, userID UserID, eventID EventID) (*Entry, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Aggregates
	// ─────────────────────────────────────────────────────────────────────────

	// GetStandings returns up to limit entries ordered by referral count, descending.
	// The order of equal counts is unspecified.
	GetStandings(ctx context.Context, eventID EventID, limit int) ([]Standing, error)

	// GetParticipantCount returns the number of entries in the event.
	GetParticipantCount(ctx context.Context, eventID EventID) (int, error)

	// SumReferralCounts returns the sum of referral counts in the event.
	SumReferralCounts(ctx context.Context, eventID EventID) (int, error)

	// GetUserHistory returns one item per entry the user holds, in any event.
	GetUserHistory(ctx context.Context, userID UserID) ([]HistoryItem, error)

	// ListAllParticipantIDs returns the distinct users holding any entry.
	ListAllParticipantIDs(ctx context.Context) ([]UserID, error)

	// DrawWinners invokes the weighted draw procedure for the event.
	DrawWinners(ctx context.Context, eventID EventID) ([]Winner, error)
}

// AtomicRegistrar is implemented by stores that can insert an entry and
// credit its referrer in a single transaction.
type AtomicRegistrar interface {
	// InsertEntryWithReferral inserts the entry and, if it has a referrer,
	// increments that referrer's count, all or nothing.
	InsertEntryWithReferral(ctx context.Context, entry *Entry) error
}

// Drawer picks winners from the entries of one event. Stores without the
// draw procedure delegate to it.
type Drawer func(entries []Entry) []Winner

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}
