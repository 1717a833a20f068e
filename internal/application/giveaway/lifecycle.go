// Package giveaway contains the application services of the referral giveaway:
// the event lifecycle, the entry ledger, admin operations and broadcasts.
package giveaway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT LIFECYCLE
// Decides whether the active event is still open and closes it once its
// end threshold has passed. Never touches entries.
// ══════════════════════════════════════════════════════════════════════════════

// Lifecycle resolves the currently open event.
type Lifecycle struct {
	repo   giveaway.Repository
	clock  giveaway.Clock
	logger *slog.Logger
}

// NewLifecycle creates a Lifecycle. A nil clock means the system clock.
func NewLifecycle(repo giveaway.Repository, clock giveaway.Clock, logger *slog.Logger) *Lifecycle {
	if clock == nil {
		clock = giveaway.SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		repo:   repo,
		clock:  clock,
		logger: logger.With("component", "lifecycle"),
	}
}

// OpenEvent returns the open event, or nil if none is open.
//
// If the active event's end threshold has passed it is deactivated and nil
// is returned. The check runs on every call; nothing is cached. Concurrent
// callers may both deactivate the same event, which is harmless.
func (l *Lifecycle) OpenEvent(ctx context.Context) (*giveaway.Event, error) {
	event, err := l.repo.FetchActiveEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: fetch active event: %w", err)
	}
	if event == nil {
		return nil, nil
	}

	ended, err := event.HasEnded(l.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ended {
		return event, nil
	}

	if err := l.repo.SetEventActive(ctx, event.ID, false); err != nil {
		return nil, fmt.Errorf("lifecycle: close event %d: %w", event.ID, err)
	}

	l.logger.Info("event closed",
		"event_id", event.ID,
		"end_date", event.EndDate,
	)
	return nil, nil
}
