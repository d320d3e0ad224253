package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

type CheckoutHandler struct {
	logger   *logrus.Logger
	checkout *service.CheckoutService
}

func NewCheckoutHandler(logger *logrus.Logger, checkout *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		logger:   logger,
		checkout: checkout,
	}
}

type CheckoutRequestPayload struct {
	Items []service.CheckoutItem `json:"items"`
}

func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger)
		return
	}

	var req CheckoutRequestPayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}

	session, err := h.checkout.CreateSession(r.Context(), clientIP(r), req.Items)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, session)
}

type CheckoutVerifyHandler struct {
	logger   *logrus.Logger
	checkout *service.CheckoutService
}

func NewCheckoutVerifyHandler(logger *logrus.Logger, checkout *service.CheckoutService) *CheckoutVerifyHandler {
	return &CheckoutVerifyHandler{logger: logger, checkout: checkout}
}

func (h *CheckoutVerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger)
		return
	}

	verified, err := h.checkout.VerifySession(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, verified)
}
