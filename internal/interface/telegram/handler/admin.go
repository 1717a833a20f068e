package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	app "github.com/amazo-world/amazo-bot/internal/application/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/domain/shared"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// /admin, /new_event, /pick, /broadcast. The router only lets the admin in.
// ══════════════════════════════════════════════════════════════════════════════

// AdminConfig contains the collaborators of the AdminHandler.
type AdminConfig struct {
	Lifecycle   *app.Lifecycle
	Ledger      *app.Ledger
	Admin       *app.Admin
	Broadcaster *app.Broadcaster

	// OnBroadcast observes the outcome of each broadcast.
	OnBroadcast func(sent, failed int)
}

// AdminHandler serves the admin commands.
type AdminHandler struct {
	lifecycle   *app.Lifecycle
	ledger      *app.Ledger
	admin       *app.Admin
	broadcaster *app.Broadcaster
	onBroadcast func(sent, failed int)
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(config AdminConfig) *AdminHandler {
	if config.OnBroadcast == nil {
		config.OnBroadcast = func(int, int) {}
	}
	return &AdminHandler{
		lifecycle:   config.Lifecycle,
		ledger:      config.Ledger,
		admin:       config.Admin,
		broadcaster: config.Broadcaster,
		onBroadcast: config.OnBroadcast,
	}
}

// Dashboard shows the stats of the open event.
func (h *AdminHandler) Dashboard(ctx context.Context, req *Request) error {
	event, err := h.lifecycle.OpenEvent(ctx)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	if event == nil {
		return req.ReplyText(ctx, presenter.AdminNoActiveEvent)
	}

	stats, err := h.ledger.Stats(ctx, event)
	if err != nil {
		return req.fail(ctx, presenter.TemporaryFailure, err)
	}
	return req.ReplyText(ctx, presenter.DashboardText(stats))
}

// NewEvent handles /new_event ID | Name | YYYY-MM-DD.
func (h *AdminHandler) NewEvent(ctx context.Context, req *Request) error {
	in, err := app.ParseCreateEventArgs(req.Args)
	if err != nil {
		return req.ReplyText(ctx, presenter.NewEventUsage)
	}

	event, err := h.admin.CreateEvent(ctx, in)
	switch {
	case err == nil:
		return req.ReplyText(ctx, presenter.EventCreatedText(event, in.EndDate))
	case errors.Is(err, shared.ErrEventExists):
		return req.ReplyText(ctx, presenter.EventExistsText(in.ID))
	case shared.IsValidation(err):
		return req.ReplyText(ctx, presenter.NewEventUsage)
	default:
		return req.fail(ctx, presenter.NewEventFailed, err)
	}
}

// Pick draws the winners of an event.
func (h *AdminHandler) Pick(ctx context.Context, req *Request) error {
	fields := strings.Fields(req.Args)
	if len(fields) == 0 {
		return req.ReplyText(ctx, presenter.PickUsage)
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return req.ReplyText(ctx, presenter.PickBadID)
	}
	eventID := giveaway.EventID(id)

	winners, err := h.ledger.DrawWinners(ctx, eventID)
	if err != nil {
		return req.fail(ctx, presenter.PickFailed, err)
	}

	return req.ReplyText(ctx, presenter.FormatWinners(eventID, winners))
}

// Broadcast sends a message to every participant of every event.
func (h *AdminHandler) Broadcast(ctx context.Context, req *Request) error {
	message := strings.TrimSpace(req.Args)
	if message == "" {
		return req.ReplyText(ctx, presenter.BroadcastUsage)
	}

	recipients, err := h.broadcaster.Recipients(ctx)
	if err != nil {
		return req.fail(ctx, presenter.BroadcastFailed, err)
	}
	if err := req.ReplyText(ctx, presenter.BroadcastStartText(len(recipients))); err != nil {
		return err
	}

	report := h.broadcaster.Send(ctx, recipients, message)
	h.onBroadcast(report.Sent, report.Failed)
	return req.ReplyText(ctx, presenter.BroadcastDoneText(report.Sent, report.Failed))
}
