package giveaway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST
// Fans a message out to every participant. Individual delivery failures are
// counted, never fatal.
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastPrefix heads every broadcast message.
const BroadcastPrefix = "AMAZO-WORLD UPDATE"

// MessageSender delivers a plain text message to a chat.
type MessageSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// BroadcastConfig contains configuration for the Broadcaster.
type BroadcastConfig struct {
	// Concurrency is the number of messages in flight.
	Concurrency int

	// RatePerSecond caps outgoing messages; Telegram allows about 30/s per bot.
	RatePerSecond float64

	Logger *slog.Logger
}

// DefaultBroadcastConfig returns the default configuration.
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		Concurrency:   4,
		RatePerSecond: 25,
		Logger:        slog.Default(),
	}
}

// BroadcastReport summarizes one broadcast run.
type BroadcastReport struct {
	RunID    string
	Total    int
	Sent     int
	Failed   int
	Duration time.Duration
}

// Broadcaster sends admin announcements to all participants.
type Broadcaster struct {
	ledger *Ledger
	sender MessageSender
	config BroadcastConfig
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(ledger *Ledger, sender MessageSender, config BroadcastConfig) *Broadcaster {
	defaults := DefaultBroadcastConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaults.RatePerSecond
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Broadcaster{
		ledger: ledger,
		sender: sender,
		config: config,
		logger: config.Logger.With("component", "broadcast"),
	}
}

// FormatBroadcast returns the text recipients receive.
func FormatBroadcast(message string) string {
	return fmt.Sprintf("%s\n\n%s", BroadcastPrefix, message)
}

// Recipients returns the broadcast audience.
func (b *Broadcaster) Recipients(ctx context.Context) ([]giveaway.UserID, error) {
	return b.ledger.ParticipantIDs(ctx)
}

// Broadcast sends message to each recipient and reports sent/failed counts.
// It only returns an error if the recipient list cannot be loaded.
func (b *Broadcaster) Broadcast(ctx context.Context, message string) (*BroadcastReport, error) {
	recipients, err := b.Recipients(ctx)
	if err != nil {
		return nil, err
	}
	return b.Send(ctx, recipients, message), nil
}

// Send delivers message to the given recipients.
func (b *Broadcaster) Send(ctx context.Context, recipients []giveaway.UserID, message string) *BroadcastReport {
	start := time.Now()
	report := &BroadcastReport{
		RunID: uuid.NewString(),
		Total: len(recipients),
	}
	logger := b.logger.With("run_id", report.RunID)
	logger.Info("broadcast started", "recipients", report.Total)

	text := FormatBroadcast(message)
	limiter := rate.NewLimiter(rate.Limit(b.config.RatePerSecond), 1)

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)

	for _, userID := range recipients {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				failed.Add(1)
				return nil
			}
			if err := b.sender.SendText(gctx, int64(userID), text); err != nil {
				failed.Add(1)
				logger.Warn("broadcast delivery failed",
					"user_id", userID,
					"error", err,
				)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Sent = int(sent.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)

	logger.Info("broadcast finished",
		"sent", report.Sent,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report
}
