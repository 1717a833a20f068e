// Package telegram implements the Telegram side of the giveaway bot: update
// intake, routing to handlers, the middleware chain and the bot lifecycle.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amazo-world/amazo-bot/internal/domain/giveaway"
	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/handler"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/middleware"
	"github.com/amazo-world/amazo-bot/internal/interface/telegram/presenter"
)

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// tracerName identifies the bot's spans.
const tracerName = "github.com/amazo-world/amazo-bot/internal/interface/telegram"

// lockStripes is the number of per-user mutexes. Updates of one user are
// handled in order; different users rarely share a stripe.
const lockStripes = 256

// ErrBotNotRunning is returned by HandleUpdate before Run or after Stop.
var ErrBotNotRunning = errors.New("telegram bot is not running")

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Mode is ModePolling or ModeWebhook.
	Mode string

	// WebhookURL and WebhookSecret are registered with Telegram in webhook mode.
	WebhookURL    string
	WebhookSecret string

	// MaxConcurrentUpdates bounds the updates handled at once.
	MaxConcurrentUpdates int

	// HandlerTimeout bounds a single update. Zero means no limit, which
	// broadcasts to large audiences need.
	HandlerTimeout time.Duration

	// GracefulShutdownTimeout bounds how long Stop waits for handlers.
	GracefulShutdownTimeout time.Duration

	RateLimit middleware.RateLimitConfig

	// Metrics receives the update metrics. Nil uses a private registry.
	Metrics *middleware.Metrics

	// TracerProvider creates one span per update. Nil uses the global provider.
	TracerProvider trace.TracerProvider

	Logger *slog.Logger
}

// DefaultBotConfig returns the default configuration.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                    ModePolling,
		MaxConcurrentUpdates:    100,
		GracefulShutdownTimeout: 30 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
		Logger:                  slog.Default(),
	}
}

// API is the part of the Bot API client the bot uses.
type API interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
	SetWebhook(ctx context.Context, url, secretToken string, maxConnections int) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot receives updates and runs them through the middleware chain and router.
type Bot struct {
	config BotConfig
	api    API
	router *Router
	logger *slog.Logger
	tracer trace.Tracer

	rateLimiter *middleware.RateLimiter
	recovery    *middleware.Recovery
	metrics     *middleware.Metrics

	running   atomic.Bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	updateSem chan struct{}
	wg        sync.WaitGroup
	locks     [lockStripes]sync.Mutex

	stats botStats
}

type botStats struct {
	startedAt   atomic.Int64
	received    atomic.Int64
	handled     atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	panics      atomic.Int64
}

// BotStats is a snapshot of runtime counters.
type BotStats struct {
	Running     bool          `json:"running"`
	Uptime      time.Duration `json:"uptime"`
	Received    int64         `json:"updates_received"`
	Handled     int64         `json:"updates_handled"`
	Failed      int64         `json:"updates_failed"`
	RateLimited int64         `json:"rate_limited"`
	Panics      int64         `json:"panics"`
}

// NewBot creates a Bot. Call Run to start receiving updates.
func NewBot(api API, router *Router, config BotConfig) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api client is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}

	defaults := DefaultBotConfig()
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.Mode != ModePolling && config.Mode != ModeWebhook {
		return nil, fmt.Errorf("unknown bot mode: %s", config.Mode)
	}
	if config.Mode == ModeWebhook && config.WebhookURL == "" {
		return nil, errors.New("webhook URL is required for webhook mode")
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}
	if config.Metrics == nil {
		config.Metrics = middleware.NewMetrics(nil)
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}

	logger := config.Logger.With("component", "telegram_bot")
	metrics := config.Metrics

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.UserErrorMessage = presenter.TemporaryFailure
	recoveryConfig.Logger = config.Logger
	recoveryConfig.OnPanic = func(ctx context.Context, info *middleware.PanicInfo) {
		metrics.Panic()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Bot{
		config:      config,
		api:         api,
		router:      router,
		logger:      logger,
		tracer:      config.TracerProvider.Tracer(tracerName),
		rateLimiter: middleware.NewRateLimiter(config.RateLimit),
		recovery:    middleware.NewRecovery(recoveryConfig),
		metrics:     metrics,
		baseCtx:     baseCtx,
		cancel:      cancel,
		updateSem:   make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Run receives updates until ctx is cancelled. In polling mode it long-polls
// getUpdates; in webhook mode it registers the webhook and waits while the
// HTTP server feeds HandleUpdate.
func (b *Bot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bot is already running")
	}
	defer b.running.Store(false)
	b.stats.startedAt.Store(time.Now().UnixNano())

	go b.rateLimiter.Run(ctx)

	b.logger.Info("starting telegram bot", "mode", b.config.Mode)

	switch b.config.Mode {
	case ModeWebhook:
		if err := b.api.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret, b.config.MaxConcurrentUpdates); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		b.logger.Info("webhook registered", "url", b.config.WebhookURL)
		<-ctx.Done()
		return nil

	default:
		// A webhook left by an earlier deployment blocks getUpdates.
		if err := b.api.DeleteWebhook(ctx, false); err != nil {
			b.logger.Warn("failed to delete webhook", "error", err)
		}
		return b.api.StartPolling(ctx, func(_ context.Context, update *telegram.Update) error {
			return b.HandleUpdate(update)
		})
	}
}

// Stop waits for in-flight updates, then cancels whatever is still running.
func (b *Bot) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("stopping telegram bot")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.config.GracefulShutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-timer.C:
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		err = ctx.Err()
	}

	b.cancel()
	return err
}

// IsRunning reports whether the bot accepts updates.
func (b *Bot) IsRunning() bool {
	return b.running.Load()
}

// Stats returns a snapshot of the runtime counters.
func (b *Bot) Stats() BotStats {
	s := BotStats{
		Running:     b.IsRunning(),
		Received:    b.stats.received.Load(),
		Handled:     b.stats.handled.Load(),
		Failed:      b.stats.failed.Load(),
		RateLimited: b.stats.rateLimited.Load(),
		Panics:      b.stats.panics.Load(),
	}
	if started := b.stats.startedAt.Load(); started > 0 {
		s.Uptime = time.Since(time.Unix(0, started))
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Update intake
// ─────────────────────────────────────────────────────────────────────────────

// HandleUpdate queues the update for handling in its own goroutine. It blocks
// while MaxConcurrentUpdates updates are in flight.
func (b *Bot) HandleUpdate(update *telegram.Update) error {
	if !b.IsRunning() {
		return ErrBotNotRunning
	}

	select {
	case b.updateSem <- struct{}{}:
	case <-b.baseCtx.Done():
		return ErrBotNotRunning
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()

		ctx := b.baseCtx
		if b.config.HandlerTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.config.HandlerTimeout)
			defer cancel()
		}
		_ = b.Process(ctx, update)
	}()
	return nil
}

// Process handles one update synchronously and returns the handler's error.
func (b *Bot) Process(ctx context.Context, update *telegram.Update) error {
	b.stats.received.Add(1)
	b.metrics.ObserveUpdate(updateKind(update))

	req := b.buildRequest(update)
	if req == nil {
		return nil
	}
	userID := int64(req.UserID)

	ctx, span := b.tracer.Start(ctx, "telegram.update", trace.WithAttributes(
		attribute.Int64("telegram.update_id", update.UpdateID),
		attribute.Int64("telegram.user_id", userID),
		attribute.String("telegram.update_kind", updateKind(update)),
	))
	defer span.End()

	if res := b.rateLimiter.Check(userID); !res.Allowed {
		b.stats.rateLimited.Add(1)
		b.metrics.RateLimited()
		span.SetAttributes(attribute.Bool("bot.rate_limited", true))
		return b.rejectRateLimited(ctx, req, res)
	}

	// Updates of one user are handled in arrival order.
	lock := &b.locks[uint64(userID)%lockStripes]
	lock.Lock()
	defer lock.Unlock()

	requestID := uuid.NewString()
	ctx = middleware.ContextWithTelegramID(ctx, userID)
	ctx = middleware.ContextWithRequestID(ctx, requestID)

	route := b.router.Label(req)
	span.SetAttributes(
		attribute.String("bot.command", route),
		attribute.String("bot.request_id", requestID),
	)
	start := time.Now()
	done := b.metrics.Begin(route)

	result := b.recovery.Guard(ctx, userID, route, func() error {
		return b.router.Dispatch(ctx, req)
	})

	err := result.Err
	if result.Recovered {
		b.stats.panics.Add(1)
		err = result.PanicInfo.Error
		span.SetAttributes(attribute.Bool("bot.panic", true))
		if sendErr := req.ReplyText(ctx, result.UserMessage); sendErr != nil {
			b.logger.Warn("failed to send error message", "telegram_id", userID, "error", sendErr)
		}
	}
	done(err)

	attrs := []any{
		"update_id", update.UpdateID,
		"request_id", requestID,
		"telegram_id", userID,
		"command", route,
		"duration", time.Since(start),
	}
	if err != nil {
		b.stats.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		b.logger.Error("update failed", append(attrs, "error", err)...)
		return err
	}

	b.stats.handled.Add(1)
	b.logger.Debug("update handled", attrs...)
	return nil
}

func (b *Bot) rejectRateLimited(ctx context.Context, req *handler.Request, res middleware.RateLimitResult) error {
	if req.IsCallback() {
		return req.Ack(ctx)
	}
	if !res.FirstRejection {
		return nil
	}
	return req.ReplyText(ctx, presenter.SlowDown)
}

// buildRequest normalizes an update. Updates without a human sender are
// dropped.
func (b *Bot) buildRequest(update *telegram.Update) *handler.Request {
	if update == nil {
		return nil
	}
	responder := &apiResponder{api: b.api}

	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
			return nil
		}
		req := &handler.Request{
			UpdateID:  update.UpdateID,
			UserID:    giveaway.UserID(msg.From.ID),
			ChatID:    msg.Chat.ID,
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			Text:      msg.Text,
			Responder: responder,
		}
		if cmd := telegram.ExtractCommand(msg); cmd != "" {
			req.Command = cmd
			req.Args = telegram.ExtractCommandArgs(msg)
		}
		return req

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.From == nil || cq.ID == "" {
			return nil
		}
		req := &handler.Request{
			UpdateID:     update.UpdateID,
			UserID:       giveaway.UserID(cq.From.ID),
			Username:     cq.From.Username,
			FirstName:    cq.From.FirstName,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
			Responder:    responder,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			req.ChatID = cq.Message.Chat.ID
			req.MessageID = cq.Message.MessageID
		}
		return req

	default:
		return nil
	}
}

func updateKind(update *telegram.Update) string {
	switch {
	case update == nil:
		return "empty"
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.EditedMessage != nil:
		return "edited_message"
	default:
		return "other"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONDER
// ══════════════════════════════════════════════════════════════════════════════

// apiResponder delivers handler responses through the Bot API.
type apiResponder struct {
	api API
}

func (r *apiResponder) Send(ctx context.Context, chatID int64, resp handler.Response) error {
	_, err := r.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:            chatID,
		Text:              resp.Text,
		ParseMode:         resp.ParseMode,
		DisableWebPreview: true,
		ReplyMarkup:       resp.Keyboard,
	})
	return err
}

func (r *apiResponder) Edit(ctx context.Context, chatID, messageID int64, resp handler.Response) error {
	_, err := r.api.EditMessageText(ctx, chatID, messageID, resp.Text, resp.ParseMode, resp.Keyboard)
	if telegram.IsMessageNotModified(err) {
		return nil
	}
	return err
}

func (r *apiResponder) AnswerCallback(ctx context.Context, callbackID string) error {
	return r.api.AnswerCallbackQuery(ctx, callbackID, "", false)
}
