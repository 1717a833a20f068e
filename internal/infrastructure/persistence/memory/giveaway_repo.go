package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY GIVEAWAY REPOSITORY
// Used for local development (STORE_DRIVER=memory) and bot-level tests.
// ══════════════════════════════════════════════════════════════════════════════

type entryKey struct {
	user  giveaway.UserID
	event giveaway.EventID
}

// GiveawayRepository implements giveaway.Repository and
// giveaway.AtomicRegistrar in process memory.
type GiveawayRepository struct {
	mu      sync.RWMutex
	events  map[giveaway.EventID]*giveaway.Event
	entries map[entryKey]*giveaway.Entry
	order   []entryKey
	drawer  giveaway.Drawer
	now     func() time.Time
}

// Compile-time checks.
var (
	_ giveaway.Repository      = (*GiveawayRepository)(nil)
	_ giveaway.AtomicRegistrar = (*GiveawayRepository)(nil)
)

// NewGiveawayRepository creates an empty repository. drawer may be nil.
func NewGiveawayRepository(drawer giveaway.Drawer) *GiveawayRepository {
	return &GiveawayRepository{
		events:  make(map[giveaway.EventID]*giveaway.Event),
		entries: make(map[entryKey]*giveaway.Entry),
		drawer:  drawer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Events
// ─────────────────────────────────────────────────────────────────────────────

// FetchActiveEvent returns the single active event, or nil.
func (r *GiveawayRepository) FetchActiveEvent(ctx context.Context) (*giveaway.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active *giveaway.Event
	for _, e := range r.events {
		if !e.IsActive {
			continue
		}
		if active != nil {
			return nil, shared.ErrMultipleOpenEvents
		}
		active = e
	}
	if active == nil {
		return nil, nil
	}
	out := *active
	return &out, nil
}

// SetEventActive sets the active flag of one event.
func (r *GiveawayRepository) SetEventActive(ctx context.Context, eventID giveaway.EventID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.events[eventID]; ok {
		e.IsActive = active
	}
	return nil
}

// DeactivateAllEvents clears every active flag.
func (r *GiveawayRepository) DeactivateAllEvents(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		e.IsActive = false
	}
	return nil
}

// CreateEvent inserts an event.
func (r *GiveawayRepository) CreateEvent(ctx context.Context, event *giveaway.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; ok {
		return shared.ErrEventExists
	}
	e := *event
	r.events[e.ID] = &e
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Entries
// ─────────────────────────────────────────────────────────────────────────────

// InsertEntry inserts an entry with zero referrals.
func (r *GiveawayRepository) InsertEntry(ctx context.Context, entry *giveaway.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(entry)
}

// InsertEntryWithReferral inserts the entry and credits its referrer under one lock.
func (r *GiveawayRepository) InsertEntryWithReferral(ctx context.Context, entry *giveaway.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.insertLocked(entry); err != nil {
		return err
	}
	if entry.ReferredBy != nil {
		r.incrementLocked(*entry.ReferredBy, entry.EventID)
	}
	return nil
}

func (r *GiveawayRepository) insertLocked(entry *giveaway.Entry) error {
	if _, ok := r.events[entry.EventID]; !ok {
		return shared.WrapError("store", "InsertEntry", shared.ErrDataIntegrity, "event does not exist", nil)
	}

	key := entryKey{entry.UserID, entry.EventID}
	if _, ok := r.entries[key]; ok {
		return shared.ErrAlreadyRegistered
	}

	entry.ReferralCount = 0
	entry.CreatedAt = r.now()

	stored := *entry
	if entry.ReferredBy != nil {
		ref := *entry.ReferredBy
		stored.ReferredBy = &ref
	}
	r.entries[key] = &stored
	r.order = append(r.order, key)
	return nil
}

// IncrementReferral adds one referral to the referrer's entry, if present.
func (r *GiveawayRepository) IncrementReferral(ctx context.Context, referrerID giveaway.UserID, eventID giveaway.EventID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incrementLocked(referrerID, eventID)
	return nil
}

func (r *GiveawayRepository) incrementLocked(referrerID giveaway.UserID, eventID giveaway.EventID) {
	if e, ok := r.entries[entryKey{referrerID, eventID}]; ok {
		e.ReferralCount++
	}
}

// GetEntry returns a copy of the entry, or nil.
func (r *GiveawayRepository) GetEntry(ctx context.Context, userID giveaway.UserID, eventID giveaway.EventID) (*giveaway.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryKey{userID, eventID}]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

// GetStandings returns entries by referral count, descending; ties keep
// registration order.
func (r *GiveawayRepository) GetStandings(ctx context.Context, eventID giveaway.EventID, limit int) ([]giveaway.Standing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []giveaway.Standing
	for _, key := range r.order {
		if key.event != eventID {
			continue
		}
		e := r.entries[key]
		rows = append(rows, giveaway.Standing{Username: e.Username, ReferralCount: e.ReferralCount})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ReferralCount > rows[j].ReferralCount })

	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// GetParticipantCount counts entries in the event.
func (r *GiveawayRepository) GetParticipantCount(ctx context.Context, eventID giveaway.EventID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.entries {
		if key.event == eventID {
			n++
		}
	}
	return n, nil
}

// SumReferralCounts sums referral counts in the event.
func (r *GiveawayRepository) SumReferralCounts(ctx context.Context, eventID giveaway.EventID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for key, e := range r.entries {
		if key.event == eventID {
			total += e.ReferralCount
		}
	}
	return total, nil
}

// GetUserHistory lists the user's entries in registration order.
func (r *GiveawayRepository) GetUserHistory(ctx context.Context, userID giveaway.UserID) ([]giveaway.HistoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []giveaway.HistoryItem
	for _, key := range r.order {
		if key.user != userID {
			continue
		}
		ev, ok := r.events[key.event]
		if !ok {
			return nil, shared.ErrOrphanEntry
		}
		items = append(items, giveaway.HistoryItem{
			EventID:       ev.ID,
			EventName:     ev.Name,
			IsActive:      ev.IsActive,
			ReferralCount: r.entries[key].ReferralCount,
		})
	}
	return items, nil
}

// ListAllParticipantIDs returns distinct users in first-registration order.
func (r *GiveawayRepository) ListAllParticipantIDs(ctx context.Context) ([]giveaway.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[giveaway.UserID]struct{})
	var ids []giveaway.UserID
	for _, key := range r.order {
		if _, ok := seen[key.user]; ok {
			continue
		}
		seen[key.user] = struct{}{}
		ids = append(ids, key.user)
	}
	return ids, nil
}

// DrawWinners hands the event's entries to the configured Drawer.
// Without one it returns shared.ErrDrawUnsupported.
func (r *GiveawayRepository) DrawWinners(ctx context.Context, eventID giveaway.EventID) ([]giveaway.Winner, error) {
	if r.drawer == nil {
		return nil, shared.ErrDrawUnsupported
	}

	r.mu.RLock()
	var entries []giveaway.Entry
	for _, key := range r.order {
		if key.event == eventID {
			entries = append(entries, *r.entries[key])
		}
	}
	r.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}
	return r.drawer(entries), nil
}
