package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/iamvkosarev/telegram-ai-relay/internal/model"
	"github.com/iamvkosarev/telegram-ai-relay/internal/telegram"
	"github.com/iamvkosarev/telegram-ai-relay/internal/usecase"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
)

const (
	maxUpdateBytes = 1 << 20

	MessageImageError   = "Error processing image command"
	MessageProcessError = "Error processing message"
)

type Dispatcher interface {
	Handle(ctx context.Context, update model.Update) (telegram.Reply, error)
}

type AccessChecker interface {
	Check(sender model.Sender) error
}

type Handler struct {
	dispatcher Dispatcher
	access     AccessChecker
	log        *slog.Logger
}

func NewHandler(dispatcher Dispatcher, access AccessChecker, log *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		access:     access,
		log:        log.With(sl.Module("webhook")),
	}
}

// HandleWebhook answers one Telegram update. A successful reply is written as
// the response body so Telegram executes it; every rejection has an empty
// body.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	update, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		h.log.Warn("failed to decode update", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	log := h.log.With(slog.Int("update_id", update.UpdateID))

	if err = h.access.Check(telegram.SenderOf(update)); err != nil {
		log.Info("sender rejected", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	classified, err := telegram.Classify(update)
	if err != nil {
		log.Warn("unsupported update", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	reply, err := h.dispatcher.Handle(r.Context(), classified)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUnsupportedUpdate):
			log.Warn("unsupported update", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, usecase.ErrImageGeneration):
			log.Error("failed to handle image command", sl.Err(err))
			writeText(w, http.StatusInternalServerError, MessageImageError)
		default:
			log.Error("failed to handle update", sl.Err(err))
			writeText(w, http.StatusInternalServerError, MessageProcessError)
		}
		return
	}

	if reply == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeReply(w, log, reply)
}

func writeReply(w http.ResponseWriter, log *slog.Logger, reply telegram.Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(reply); err != nil {
		log.Error("failed to write reply", sl.Err(err), slog.String("method", reply.MethodName()))
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
