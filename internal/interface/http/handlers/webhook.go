package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amazo-world/amazo-bot/internal/infrastructure/external/telegram"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher accepts updates for asynchronous handling.
type UpdateDispatcher interface {
	HandleUpdate(update *telegram.Update) error
}

// TelegramWebhook receives updates pushed by Telegram.
type TelegramWebhook struct {
	dispatcher UpdateDispatcher
	secret     string
	logger     *slog.Logger
}

// NewTelegramWebhook creates the webhook handler. With an empty secret every
// request is rejected.
func NewTelegramWebhook(dispatcher UpdateDispatcher, secret string, logger *slog.Logger) *TelegramWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramWebhook{
		dispatcher: dispatcher,
		secret:     secret,
		logger:     logger.With("component", "telegram_webhook"),
	}
}

// Handle validates and decodes the update and hands it to the bot. Decoded
// updates are always answered with 200 so Telegram does not redeliver them.
func (h *TelegramWebhook) Handle(c *gin.Context) {
	got := c.GetHeader(SecretTokenHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook secret mismatch", "ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
		return
	}

	if err := h.dispatcher.HandleUpdate(&update); err != nil {
		h.logger.Error("failed to dispatch update",
			"update_id", update.UpdateID,
			"error", err,
		)
	}
	c.Status(http.StatusOK)
}
