package giveaway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

type entryKey struct {
	user  giveaway.UserID
	event giveaway.EventID
}

// memStore is an in-memory giveaway.Repository for service tests.
type memStore struct {
	mu      sync.Mutex
	events  map[giveaway.EventID]*giveaway.Event
	entries map[entryKey]*giveaway.Entry
	order   []entryKey
	winners map[giveaway.EventID][]giveaway.Winner

	setActiveCalls int
	incrementCalls int

	fetchErr     error
	incrementErr error
}

func newMemStore() *memStore {
	return &memStore{
		events:  make(map[giveaway.EventID]*giveaway.Event),
		entries: make(map[entryKey]*giveaway.Entry),
		winners: make(map[giveaway.EventID][]giveaway.Winner),
	}
}

func (s *memStore) addEvent(e giveaway.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = &e
}

func (s *memStore) event(id giveaway.EventID) giveaway.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

func (s *memStore) FetchActiveEvent(ctx context.Context) (*giveaway.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var active []*giveaway.Event
	for _, e := range s.events {
		if e.IsActive {
			active = append(active, e)
		}
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		e := *active[0]
		return &e, nil
	default:
		return nil, shared.ErrMultipleOpenEvents
	}
}

func (s *memStore) SetEventActive(ctx context.Context, id giveaway.EventID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setActiveCalls++
	if e, ok := s.events[id]; ok {
		e.IsActive = active
	}
	return nil
}

func (s *memStore) DeactivateAllEvents(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		e.IsActive = false
	}
	return nil
}

func (s *memStore) CreateEvent(ctx context.Context, event *giveaway.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return shared.WrapError("store", "CreateEvent", shared.ErrAlreadyExists, "duplicate event", nil)
	}
	e := *event
	s.events[e.ID] = &e
	return nil
}

func (s *memStore) insertLocked(entry *giveaway.Entry) error {
	key := entryKey{entry.UserID, entry.EventID}
	if _, ok := s.entries[key]; ok {
		return shared.ErrAlreadyRegistered
	}
	e := *entry
	e.ReferralCount = 0
	e.CreatedAt = time.Now()
	s.entries[key] = &e
	s.order = append(s.order, key)
	return nil
}

func (s *memStore) incrementLocked(referrer giveaway.UserID, event giveaway.EventID) {
	if e, ok := s.entries[entryKey{referrer, event}]; ok {
		e.ReferralCount++
	}
}

func (s *memStore) InsertEntry(ctx context.Context, entry *giveaway.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entry)
}

func (s *memStore) IncrementReferral(ctx context.Context, referrer giveaway.UserID, event giveaway.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrementCalls++
	if s.incrementErr != nil {
		return s.incrementErr
	}
	s.incrementLocked(referrer, event)
	return nil
}

func (s *memStore) GetEntry(ctx context.Context, user giveaway.UserID, event giveaway.EventID) (*giveaway.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey{user, event}]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func (s *memStore) GetStandings(ctx context.Context, event giveaway.EventID, limit int) ([]giveaway.Standing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []giveaway.Standing
	for _, key := range s.order {
		if key.event != event {
			continue
		}
		e := s.entries[key]
		rows = append(rows, giveaway.Standing{Username: e.Username, ReferralCount: e.ReferralCount})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ReferralCount > rows[j].ReferralCount })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *memStore) GetParticipantCount(ctx context.Context, event giveaway.EventID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.entries {
		if key.event == event {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SumReferralCounts(ctx context.Context, event giveaway.EventID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for key, e := range s.entries {
		if key.event == event {
			total += e.ReferralCount
		}
	}
	return total, nil
}

func (s *memStore) GetUserHistory(ctx context.Context, user giveaway.UserID) ([]giveaway.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []giveaway.HistoryItem
	for _, key := range s.order {
		if key.user != user {
			continue
		}
		ev, ok := s.events[key.event]
		if !ok {
			return nil, shared.ErrOrphanEntry
		}
		items = append(items, giveaway.HistoryItem{
			EventID:       ev.ID,
			EventName:     ev.Name,
			IsActive:      ev.IsActive,
			ReferralCount: s.entries[key].ReferralCount,
		})
	}
	return items, nil
}

func (s *memStore) ListAllParticipantIDs(ctx context.Context) ([]giveaway.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[giveaway.UserID]bool)
	var ids []giveaway.UserID
	for _, key := range s.order {
		if !seen[key.user] {
			seen[key.user] = true
			ids = append(ids, key.user)
		}
	}
	return ids, nil
}

func (s *memStore) DrawWinners(ctx context.Context, event giveaway.EventID) ([]giveaway.Winner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winners[event], nil
}

// atomicStore adds the single-transaction registration path.
type atomicStore struct {
	*memStore
	atomicCalls int
}

func (s *atomicStore) InsertEntryWithReferral(ctx context.Context, entry *giveaway.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atomicCalls++
	if err := s.insertLocked(entry); err != nil {
		return err
	}
	if entry.ReferredBy != nil {
		s.incrementLocked(*entry.ReferredBy, entry.EventID)
	}
	return nil
}

func fixedClock(t time.Time) giveaway.Clock {
	return giveaway.ClockFunc(func() time.Time { return t })
}

func userPtr(id giveaway.UserID) *giveaway.UserID {
	return &id
}
