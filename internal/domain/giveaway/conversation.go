package giveaway

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION CONVERSATION
// Short-lived scratch data for the /enter flow. Not part of the durable model.
// ══════════════════════════════════════════════════════════════════════════════

// Step is the position of a user inside the registration conversation.
type Step string

const (
	// StepNone means no conversation is in progress.
	StepNone Step = ""

	// StepTerms waits for the user to accept the terms.
	StepTerms Step = "terms"

	// StepWallet waits for the wallet address.
	StepWallet Step = "wallet"
)

// Conversation is the per-user scratch state.
// ReferrerID survives the end of a conversation so a later /enter still
// credits the referral link the user arrived through.
type Conversation struct {
	Step       Step      `json:"step"`
	EventID    EventID   `json:"event_id,omitempty"`
	ReferrerID *UserID   `json:"referred_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Active returns true while the user is inside the registration flow.
func (c *Conversation) Active() bool {
	return c != nil && c.Step != StepNone
}

// End leaves the flow but keeps the remembered referrer.
func (c *Conversation) End() {
	c.Step = StepNone
	c.EventID = 0
}

// ConversationStore keeps Conversation values per user with a TTL.
type ConversationStore interface {
	// Get returns the stored conversation, or an empty one if none exists or
	// it has expired.
	Get(ctx context.Context, userID UserID) (*Conversation, error)

	// Save stores the conversation and refreshes its TTL.
	Save(ctx context.Context, userID UserID, conv *Conversation) error

	// Clear removes the conversation entirely.
	Clear(ctx context.Context, userID UserID) error
}
