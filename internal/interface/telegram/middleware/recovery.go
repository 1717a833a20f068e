package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// Catches panics in handlers so that one bad update cannot take the bot down.
// The user gets a neutral message; the log gets the stack.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace captures the stack of the panicking goroutine.
	EnableStackTrace bool

	// OnPanic is called for every recovered panic, e.g. to bump a metric.
	OnPanic func(ctx context.Context, info *PanicInfo)

	// UserErrorMessage is sent to the user after a panic.
	UserErrorMessage string

	// MaxPanicsPerMinute caps how many panics are logged per minute.
	MaxPanicsPerMinute int

	Logger *slog.Logger
}

// DefaultRecoveryConfig returns the default configuration.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace:   true,
		UserErrorMessage:   "Something went wrong. Please try again in a minute.",
		MaxPanicsPerMinute: 100,
		Logger:             slog.Default(),
	}
}

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Error      error
	PanicValue any
	StackTrace string
	RequestID  string
	TelegramID int64
	Command    string
	Timestamp  time.Time
	Goroutine  int
}

// String returns a multi-line report of the panic.
func (p *PanicInfo) String() string {
	var b strings.Builder
	b.WriteString("=== PANIC RECOVERED ===\n")
	fmt.Fprintf(&b, "Time:       %s\n", p.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Goroutine:  %d\n", p.Goroutine)
	if p.RequestID != "" {
		fmt.Fprintf(&b, "RequestID:  %s\n", p.RequestID)
	}
	if p.TelegramID != 0 {
		fmt.Fprintf(&b, "TelegramID: %d\n", p.TelegramID)
	}
	if p.Command != "" {
		fmt.Fprintf(&b, "Command:    %s\n", p.Command)
	}
	fmt.Fprintf(&b, "Error:      %v\n", p.PanicValue)
	if p.StackTrace != "" {
		b.WriteString("\nStack Trace:\n")
		b.WriteString(p.StackTrace)
	}
	b.WriteString("========================\n")
	return b.String()
}

// RecoveryResult is the outcome of a guarded call.
type RecoveryResult struct {
	// Recovered is true when the handler panicked.
	Recovered bool

	PanicInfo *PanicInfo

	// UserMessage is the text to send to the user, set when Recovered.
	UserMessage string

	// Err is the handler's own error when it returned normally.
	Err error
}

// Recovery recovers panics raised by handlers.
type Recovery struct {
	config  RecoveryConfig
	limiter *panicRateLimiter
	logger  *slog.Logger
}

// NewRecovery creates a Recovery.
func NewRecovery(config RecoveryConfig) *Recovery {
	defaults := DefaultRecoveryConfig()
	if config.UserErrorMessage == "" {
		config.UserErrorMessage = defaults.UserErrorMessage
	}
	if config.MaxPanicsPerMinute <= 0 {
		config.MaxPanicsPerMinute = defaults.MaxPanicsPerMinute
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Recovery{
		config:  config,
		limiter: newPanicRateLimiter(config.MaxPanicsPerMinute),
		logger:  config.Logger.With("component", "recovery"),
	}
}

// Guard runs handler and converts a panic into a RecoveryResult.
func (m *Recovery) Guard(ctx context.Context, telegramID int64, command string, handler func() error) (result RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			result = m.handlePanic(ctx, r, telegramID, command)
		}
	}()

	return RecoveryResult{Err: handler()}
}

func (m *Recovery) handlePanic(ctx context.Context, value any, telegramID int64, command string) RecoveryResult {
	info := &PanicInfo{
		Error:      toError(value),
		PanicValue: value,
		RequestID:  RequestIDFromContext(ctx),
		TelegramID: telegramID,
		Command:    command,
		Timestamp:  time.Now(),
		Goroutine:  goroutineID(),
	}
	if m.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	if m.limiter.allow() {
		m.logger.Error("handler panic",
			"error", info.Error,
			"telegram_id", telegramID,
			"command", command,
			"request_id", info.RequestID,
			"stack", info.StackTrace,
		)
	}
	if m.config.OnPanic != nil {
		m.config.OnPanic(ctx, info)
	}

	return RecoveryResult{
		Recovered:   true,
		PanicInfo:   info,
		UserMessage: m.config.UserErrorMessage,
	}
}

func toError(value any) error {
	switch v := value.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("%s", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// goroutineID parses the current goroutine ID from the stack header.
// For logs only.
func goroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id int
	_, _ = fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	return id
}

// panicRateLimiter keeps a panic storm from flooding the log.
type panicRateLimiter struct {
	mu        sync.Mutex
	count     int
	maxPerMin int
	window    time.Time
}

func newPanicRateLimiter(maxPerMin int) *panicRateLimiter {
	return &panicRateLimiter{maxPerMin: maxPerMin, window: time.Now()}
}

func (p *panicRateLimiter) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.window) > time.Minute {
		p.count = 0
		p.window = now
	}
	if p.count >= p.maxPerMin {
		return false
	}
	p.count++
	return true
}
