// Package memory holds in-process stores: the conversation store used when
// Redis is disabled and a giveaway repository for local development.
// State is lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
)

// DefaultTTL is how long an idle conversation is kept.
const DefaultTTL = 30 * time.Minute

type item struct {
	conv      giveaway.Conversation
	expiresAt time.Time
}

// ConversationStore implements giveaway.ConversationStore with a map.
// Expired items are dropped lazily on Get and in bulk by Sweep.
type ConversationStore struct {
	mu    sync.Mutex
	items map[giveaway.UserID]item
	ttl   time.Duration
	now   func() time.Time
}

// Compile-time check.
var _ giveaway.ConversationStore = (*ConversationStore)(nil)

// NewConversationStore creates a store. A non-positive ttl uses DefaultTTL.
func NewConversationStore(ttl time.Duration) *ConversationStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ConversationStore{
		items: make(map[giveaway.UserID]item),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the stored conversation, or an empty one.
func (s *ConversationStore) Get(ctx context.Context, userID giveaway.UserID) (*giveaway.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[userID]
	if !ok {
		return &giveaway.Conversation{}, nil
	}
	if !s.now().Before(it.expiresAt) {
		delete(s.items, userID)
		return &giveaway.Conversation{}, nil
	}

	conv := it.conv
	if it.conv.ReferrerID != nil {
		ref := *it.conv.ReferrerID
		conv.ReferrerID = &ref
	}
	return &conv, nil
}

// Save stores a copy of conv and refreshes its TTL.
func (s *ConversationStore) Save(ctx context.Context, userID giveaway.UserID, conv *giveaway.Conversation) error {
	if conv == nil {
		return s.Clear(ctx, userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv.UpdatedAt = now.UTC()

	stored := *conv
	if conv.ReferrerID != nil {
		ref := *conv.ReferrerID
		stored.ReferrerID = &ref
	}
	s.items[userID] = item{conv: stored, expiresAt: now.Add(s.ttl)}
	return nil
}

// Clear removes the conversation.
func (s *ConversationStore) Clear(ctx context.Context, userID giveaway.UserID) error {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
	return nil
}

// Sweep drops every expired conversation and returns how many were removed.
func (s *ConversationStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, it := range s.items {
		if !now.Before(it.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored conversations, expired ones included.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *ConversationStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
