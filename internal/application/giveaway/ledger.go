package giveaway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/pkg/validator"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY LEDGER
// Records one entry per (user, event) and attributes referral credit.
// Never changes event state.
// ══════════════════════════════════════════════════════════════════════════════

// Default ledger settings.
const (
	DefaultWalletMinLength = 30
	DefaultWalletMaxLength = 50
	DefaultStandingsLimit  = 10
)

// LedgerConfig contains configuration for the Ledger.
type LedgerConfig struct {
	// WalletMinLength and WalletMaxLength bound the wallet address length, inclusive.
	WalletMinLength int
	WalletMaxLength int

	// StandingsLimit is used when a caller asks for a non-positive limit.
	StandingsLimit int

	Logger *slog.Logger
}

// DefaultLedgerConfig returns the default configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		WalletMinLength: DefaultWalletMinLength,
		WalletMaxLength: DefaultWalletMaxLength,
		StandingsLimit:  DefaultStandingsLimit,
		Logger:          slog.Default(),
	}
}

// Ledger manages giveaway entries.
type Ledger struct {
	repo       giveaway.Repository
	validate   *playground.Validate
	walletRule string
	config     LedgerConfig
	logger     *slog.Logger
}

// NewLedger creates a Ledger. Zero config fields take their defaults.
func NewLedger(repo giveaway.Repository, config LedgerConfig) *Ledger {
	defaults := DefaultLedgerConfig()
	if config.WalletMinLength <= 0 {
		config.WalletMinLength = defaults.WalletMinLength
	}
	if config.WalletMaxLength <= 0 {
		config.WalletMaxLength = defaults.WalletMaxLength
	}
	if config.StandingsLimit <= 0 {
		config.StandingsLimit = defaults.StandingsLimit
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Ledger{
		repo:       repo,
		validate:   validator.New(),
		walletRule: fmt.Sprintf("min=%d,max=%d", config.WalletMinLength, config.WalletMaxLength),
		config:     config,
		logger:     config.Logger.With("component", "ledger"),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

// RegisterEntryInput contains the data to register a user for an event.
type RegisterEntryInput struct {
	UserID  giveaway.UserID  `validate:"gt=0" label:"user ID"`
	EventID giveaway.EventID `validate:"gt=0" label:"event ID"`

	// Username is the display name snapshot.
	Username string

	// WalletAddress is trimmed before the length check.
	WalletAddress string

	// ReferrerID is optional. Self-referrals and non-positive IDs are dropped.
	ReferrerID *giveaway.UserID
}

// RegisterEntry records the entry and credits the referrer.
//
// Returns an error wrapping shared.ErrInvalidWallet when the wallet length is
// out of bounds and shared.ErrAlreadyRegistered when the user already holds
// an entry for the event. Openness of the event is not re-checked here.
//
// Without an atomic store the insert and the referral increment are two
// operations. If the increment fails the saved entry is returned together
// with an error wrapping shared.ErrReferralNotCounted.
func (l *Ledger) RegisterEntry(ctx context.Context, in RegisterEntryInput) (*giveaway.Entry, error) {
	if err := validator.Struct(ctx, l.validate, in); err != nil {
		return nil, shared.WrapError("giveaway", "RegisterEntry", shared.ErrInvalidInput, err.Error(), err)
	}

	wallet := strings.TrimSpace(in.WalletAddress)
	if err := validator.Var(ctx, l.validate, "wallet address", wallet, l.walletRule); err != nil {
		return nil, shared.WrapError("giveaway", "RegisterEntry", shared.ErrInvalidWallet,
			fmt.Sprintf("wallet address must be %d to %d characters", l.config.WalletMinLength, l.config.WalletMaxLength), err)
	}

	entry := &giveaway.Entry{
		UserID:        in.UserID,
		EventID:       in.EventID,
		Username:      giveaway.DisplayName(in.UserID, in.Username),
		WalletAddress: wallet,
		ReferredBy:    effectiveReferrer(in.UserID, in.ReferrerID),
	}

	if registrar, ok := l.repo.(giveaway.AtomicRegistrar); ok {
		if err := registrar.InsertEntryWithReferral(ctx, entry); err != nil {
			return nil, l.insertError(entry, err)
		}
		l.logRegistered(entry)
		return entry, nil
	}

	if err := l.repo.InsertEntry(ctx, entry); err != nil {
		return nil, l.insertError(entry, err)
	}

	if entry.ReferredBy != nil {
		if err := l.repo.IncrementReferral(ctx, *entry.ReferredBy, entry.EventID); err != nil {
			l.logger.Warn("referral credit lost",
				"user_id", entry.UserID,
				"event_id", entry.EventID,
				"referrer_id", *entry.ReferredBy,
				"error", err,
			)
			return entry, shared.WrapError("giveaway", "RegisterEntry", shared.ErrReferralNotCounted,
				"referral increment failed after entry insert", err)
		}
	}

	l.logRegistered(entry)
	return entry, nil
}

func (l *Ledger) insertError(entry *giveaway.Entry, err error) error {
	if errors.Is(err, shared.ErrAlreadyExists) {
		l.logger.Info("entry already registered",
			"user_id", entry.UserID,
			"event_id", entry.EventID,
		)
		if errors.Is(err, shared.ErrAlreadyRegistered) {
			return err
		}
		return shared.WrapError("giveaway", "RegisterEntry", shared.ErrAlreadyRegistered, "duplicate entry", err)
	}
	return fmt.Errorf("ledger: insert entry: %w", err)
}

func (l *Ledger) logRegistered(entry *giveaway.Entry) {
	attrs := []any{
		"user_id", entry.UserID,
		"event_id", entry.EventID,
	}
	if entry.ReferredBy != nil {
		attrs = append(attrs, "referrer_id", *entry.ReferredBy)
	}
	l.logger.Info("entry registered", attrs...)
}

// effectiveReferrer drops self-referrals and invalid referrer IDs.
func effectiveReferrer(userID giveaway.UserID, referrer *giveaway.UserID) *giveaway.UserID {
	if referrer == nil || !referrer.IsValid() || *referrer == userID {
		return nil
	}
	r := *referrer
	return &r
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// Entry returns the user's entry in the event, or nil if absent.
func (l *Ledger) Entry(ctx context.Context, userID giveaway.UserID, eventID giveaway.EventID) (*giveaway.Entry, error) {
	entry, err := l.repo.GetEntry(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger: get entry: %w", err)
	}
	return entry, nil
}

// Standings returns the top referrers of the event, highest count first.
// Ties are returned in store order, which is not deterministic.
func (l *Ledger) Standings(ctx context.Context, eventID giveaway.EventID, limit int) ([]giveaway.Standing, error) {
	if limit <= 0 {
		limit = l.config.StandingsLimit
	}
	standings, err := l.repo.GetStandings(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: get standings: %w", err)
	}
	if len(standings) > limit {
		standings = standings[:limit]
	}
	return standings, nil
}

// ParticipantCount returns the number of entries in the event.
func (l *Ledger) ParticipantCount(ctx context.Context, eventID giveaway.EventID) (int, error) {
	n, err := l.repo.GetParticipantCount(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("ledger: participant count: %w", err)
	}
	return n, nil
}

// ReferralTotal returns the sum of referral counts in the event.
func (l *Ledger) ReferralTotal(ctx context.Context, eventID giveaway.EventID) (int, error) {
	n, err := l.repo.SumReferralCounts(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("ledger: referral total: %w", err)
	}
	return n, nil
}

// Stats returns the dashboard summary of the event.
func (l *Ledger) Stats(ctx context.Context, event *giveaway.Event) (giveaway.EventStats, error) {
	participants, err := l.ParticipantCount(ctx, event.ID)
	if err != nil {
		return giveaway.EventStats{}, err
	}
	referrals, err := l.ReferralTotal(ctx, event.ID)
	if err != nil {
		return giveaway.EventStats{}, err
	}
	return giveaway.EventStats{
		Event:        event,
		Participants: participants,
		Referrals:    referrals,
	}, nil
}

// History returns the user's entries across all events.
func (l *Ledger) History(ctx context.Context, userID giveaway.UserID) ([]giveaway.HistoryItem, error) {
	items, err := l.repo.GetUserHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	return items, nil
}

// DrawWinners runs the store's weighted draw for the event.
// An event without entries yields an empty result, not an error.
func (l *Ledger) DrawWinners(ctx context.Context, eventID giveaway.EventID) ([]giveaway.Winner, error) {
	winners, err := l.repo.DrawWinners(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger: draw winners: %w", err)
	}
	if winners == nil {
		winners = []giveaway.Winner{}
	}
	l.logger.Info("winners drawn",
		"event_id", eventID,
		"count", len(winners),
	)
	return winners, nil
}

// ParticipantIDs returns every user holding an entry in any event.
func (l *Ledger) ParticipantIDs(ctx context.Context) ([]giveaway.UserID, error) {
	ids, err := l.repo.ListAllParticipantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list participants: %w", err)
	}
	return ids, nil
}
