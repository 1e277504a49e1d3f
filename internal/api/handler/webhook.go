package handler

import (
	"context"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/igrabba/internal/telegram"
)

// UpdateHandler consumes decoded Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// WebhookHandler receives Telegram webhook deliveries.
type WebhookHandler struct {
	updates UpdateHandler
	logger  *slog.Logger
}

// NewWebhookHandler creates a webhook handler. With nil updates, deliveries are
// acknowledged and dropped, which is the polling-mode behavior.
func NewWebhookHandler(updates UpdateHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{updates: updates, logger: logger}
}

// Receive handles POST /webhook.
// The update is acknowledged as soon as it is queued; processing happens on the worker pool.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	update, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		h.logger.Error("webhook error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}

	if h.updates == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if err := h.updates.HandleUpdate(r.Context(), update); err != nil {
		// A full queue is already reported to the chat; a non-2xx would make Telegram redeliver.
		h.logger.Warn("webhook update not queued", "update_id", update.UpdateID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
