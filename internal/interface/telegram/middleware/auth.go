package middleware

import (
	"context"
)

// contextKey is the type of the keys this package stores in a context.
type contextKey string

const (
	// TelegramIDContextKey holds the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"

	// RequestIDContextKey holds the per-update request ID.
	RequestIDContextKey contextKey = "request_id"
)

// ContextWithTelegramID stores the Telegram user ID.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext returns the Telegram user ID, or 0.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(TelegramIDContextKey).(int64)
	return id
}

// ContextWithRequestID stores the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN AUTHORIZATION
// ══════════════════════════════════════════════════════════════════════════════

// AdminAuth decides who may run admin commands.
type AdminAuth struct {
	adminID int64
}

// NewAdminAuth creates an AdminAuth for a single admin.
func NewAdminAuth(adminID int64) *AdminAuth {
	return &AdminAuth{adminID: adminID}
}

// AdminID returns the configured admin.
func (a *AdminAuth) AdminID() int64 {
	return a.adminID
}

// Authorize reports whether the sender may run an admin command. Only
// messages qualify; button presses never carry admin rights.
func (a *AdminAuth) Authorize(telegramID int64, fromMessage bool) bool {
	return fromMessage && a.adminID > 0 && telegramID == a.adminID
}
