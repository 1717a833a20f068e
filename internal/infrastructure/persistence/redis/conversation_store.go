package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
)

const (
	// PrefixConversation namespaces conversation keys.
	PrefixConversation = "conversation:"

	// DefaultConversationTTL is how long an idle conversation is kept.
	DefaultConversationTTL = 30 * time.Minute
)

// ConversationKey returns the key holding a user's conversation.
func ConversationKey(userID giveaway.UserID) string {
	return PrefixConversation + strconv.FormatInt(int64(userID), 10)
}

// ConversationStore implements giveaway.ConversationStore on Redis.
// Every value is a JSON document with its own TTL.
type ConversationStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// Compile-time check.
var _ giveaway.ConversationStore = (*ConversationStore)(nil)

// NewConversationStore creates a store. A non-positive ttl uses
// DefaultConversationTTL.
func NewConversationStore(client *redis.Client, ttl time.Duration) *ConversationStore {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ConversationStore{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the conversation or an empty one if the key is missing.
func (s *ConversationStore) Get(ctx context.Context, userID giveaway.UserID) (*giveaway.Conversation, error) {
	data, err := s.client.Get(ctx, ConversationKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &giveaway.Conversation{}, nil
		}
		return nil, shared.WrapError("conversation", "Get", shared.ErrStoreUnavailable, "redis get failed", err)
	}

	var conv giveaway.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return &conv, nil
}

// Save stores the conversation and refreshes the TTL.
func (s *ConversationStore) Save(ctx context.Context, userID giveaway.UserID, conv *giveaway.Conversation) error {
	if conv == nil {
		return s.Clear(ctx, userID)
	}

	conv.UpdatedAt = s.now()
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	if err := s.client.Set(ctx, ConversationKey(userID), data, s.ttl).Err(); err != nil {
		return shared.WrapError("conversation", "Save", shared.ErrStoreUnavailable, "redis set failed", err)
	}
	return nil
}

// Clear removes the conversation.
func (s *ConversationStore) Clear(ctx context.Context, userID giveaway.UserID) error {
	if err := s.client.Del(ctx, ConversationKey(userID)).Err(); err != nil {
		return shared.WrapError("conversation", "Clear", shared.ErrStoreUnavailable, "redis del failed", err)
	}
	return nil
}
