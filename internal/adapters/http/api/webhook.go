package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/okian/callledger/internal/app"
	"github.com/okian/callledger/pkg/logger"
)

// WebhookHandler performs transport checks and hands the body to the Dispatcher.
type WebhookHandler struct {
	dispatcher Dispatcher
	maxBody    int64
	logger     logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(d Dispatcher, maxBody int64) *WebhookHandler {
	return &WebhookHandler{dispatcher: d, maxBody: maxBody, logger: logger.Get().Named("webhook")}
}

// HandleWebhook handles POST /webhook and POST /.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeStatus(w, http.StatusMethodNotAllowed, string(app.OutcomeClientError), ErrMethod.Error())
		return
	}
	if !isJSON(r.Header.Get("Content-Type")) {
		writeStatus(w, http.StatusBadRequest, string(app.OutcomeClientError), ErrContentType.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: limit %d bytes", ErrBodyTooBig, tooBig.Limit)
		} else {
			err = fmt.Errorf("%w: %w", ErrReadBody, err)
		}
		h.logger.Warn(ctx, "webhook body rejected", logger.Error(err))
		writeStatus(w, http.StatusBadRequest, string(app.OutcomeClientError), err.Error())
		return
	}

	res := h.dispatcher.Dispatch(ctx, body)
	writeStatus(w, res.Status, string(res.Outcome), res.Message)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
