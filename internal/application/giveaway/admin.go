package giveaway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/pkg/timeutil"
	"github.com/amazo-world/amazo-bot/pkg/validator"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN OPERATIONS
// Event creation. Only the admin handlers call into this.
// ══════════════════════════════════════════════════════════════════════════════

// CreateEventInput contains the data for a new event.
type CreateEventInput struct {
	ID      giveaway.EventID `validate:"gt=0" label:"event ID"`
	Name    string           `validate:"notblank,max=100"`
	EndDate string           `validate:"required,datetime=2006-01-02" label:"end date"`
}

// ParseCreateEventArgs parses "ID | Name | YYYY-MM-DD".
func ParseCreateEventArgs(args string) (CreateEventInput, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 3 {
		return CreateEventInput{}, shared.WrapError("giveaway", "ParseCreateEventArgs", shared.ErrInvalidFormat,
			"expected ID | Name | YYYY-MM-DD", nil)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return CreateEventInput{}, shared.WrapError("giveaway", "ParseCreateEventArgs", shared.ErrInvalidID,
			"event ID must be an integer", err)
	}

	return CreateEventInput{
		ID:      giveaway.EventID(id),
		Name:    strings.TrimSpace(parts[1]),
		EndDate: strings.TrimSpace(parts[2]),
	}, nil
}

// Admin performs administrative event operations.
type Admin struct {
	repo     giveaway.Repository
	validate *playground.Validate
	logger   *slog.Logger
}

// NewAdmin creates an Admin.
func NewAdmin(repo giveaway.Repository, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With("component", "admin"),
	}
}

// CreateEvent deactivates every event and inserts the new one as active.
// The event closes at 23:59:59 UTC of its end date.
//
// The ID is checked against the store only on insert, so a duplicate ID
// leaves all events inactive and returns shared.ErrEventExists.
func (a *Admin) CreateEvent(ctx context.Context, in CreateEventInput) (*giveaway.Event, error) {
	if err := validator.Struct(ctx, a.validate, in); err != nil {
		return nil, shared.WrapError("giveaway", "CreateEvent", shared.ErrValidation, err.Error(), err)
	}

	day, err := timeutil.ParseDate(in.EndDate)
	if err != nil {
		return nil, shared.WrapError("giveaway", "CreateEvent", shared.ErrInvalidFormat, "invalid end date", err)
	}

	event, err := giveaway.NewEvent(in.ID, in.Name, day)
	if err != nil {
		return nil, err
	}

	if err := a.repo.DeactivateAllEvents(ctx); err != nil {
		return nil, fmt.Errorf("admin: deactivate events: %w", err)
	}

	if err := a.repo.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.WrapError("giveaway", "CreateEvent", shared.ErrEventExists,
				fmt.Sprintf("event %d already exists", event.ID), err)
		}
		return nil, fmt.Errorf("admin: create event: %w", err)
	}

	a.logger.Info("event created",
		"event_id", event.ID,
		"name", event.Name,
		"end_date", event.EndDate,
	)
	return event, nil
}
