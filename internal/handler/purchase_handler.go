package handler

import (
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

const maxWebhookBody = 64 << 10

// PurchaseWebhookHandler receives payment provider notifications and records
// purchases.
type PurchaseWebhookHandler struct {
	logger     *logrus.Logger
	reconciler *service.ReconcilerService
}

func NewPurchaseWebhookHandler(logger *logrus.Logger, reconciler *service.ReconcilerService) *PurchaseWebhookHandler {
	return &PurchaseWebhookHandler{
		logger:     logger,
		reconciler: reconciler,
	}
}

type PurchaseWebhookResponse struct {
	Received   bool   `json:"received"`
	Status     string `json:"status"`
	PurchaseID string `json:"purchaseId,omitempty"`
}

func (h *PurchaseWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read webhook body")
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "Webhook error"})
		return
	}

	result, err := h.reconciler.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, PurchaseWebhookResponse{
		Received:   true,
		Status:     string(result.Status),
		PurchaseID: result.PurchaseID,
	})
}
