package handler

import (
	"bytes"
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

// SubscribeHandler serves /newsletter/subscribe. POST is public; listing and
// removal require an admin session.
type SubscribeHandler struct {
	logger     *logrus.Logger
	newsletter *service.NewsletterService
	admin      adminAuth
}

func NewSubscribeHandler(logger *logrus.Logger, newsletter *service.NewsletterService, gate *service.AdminGate) *SubscribeHandler {
	return &SubscribeHandler{logger: logger, newsletter: newsletter, admin: adminAuth{gate: gate, logger: logger}}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (h *SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req subscribeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		total, err := h.newsletter.Subscribe(r.Context(), req.Email, clientIP(r), r.UserAgent())
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]any{
			"success":         true,
			"message":         "Successfully subscribed to newsletter!",
			"subscriberCount": total,
		})

	case http.MethodGet:
		if !h.admin.require(w, r) {
			return
		}
		subscribers, err := h.newsletter.List(r.Context())
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]any{
			"subscribers": subscribers,
			"count":       len(subscribers),
		})

	case http.MethodDelete:
		if !h.admin.require(w, r) {
			return
		}
		email := r.URL.Query().Get("email")
		if email == "" {
			var req subscribeRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, h.logger, err, true)
				return
			}
			email = req.Email
		}
		if err := h.newsletter.Unsubscribe(r.Context(), email); err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})

	default:
		methodNotAllowed(w, r, h.logger)
	}
}

type NewsletterSendHandler struct {
	logger     *logrus.Logger
	newsletter *service.NewsletterService
}

func NewNewsletterSendHandler(logger *logrus.Logger, newsletter *service.NewsletterService) *NewsletterSendHandler {
	return &NewsletterSendHandler{logger: logger, newsletter: newsletter}
}

type sendRequest struct {
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

func (h *NewsletterSendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger)
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	report, err := h.newsletter.Send(r.Context(), req.Subject, req.Message, req.Recipients)
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

type NewsletterExportHandler struct {
	logger     *logrus.Logger
	newsletter *service.NewsletterService
}

func NewNewsletterExportHandler(logger *logrus.Logger, newsletter *service.NewsletterService) *NewsletterExportHandler {
	return &NewsletterExportHandler{logger: logger, newsletter: newsletter}
}

func (h *NewsletterExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		var buf bytes.Buffer
		if err := h.newsletter.ExportCSV(r.Context(), &buf); err != nil {
			writeError(w, r, h.logger, err, false)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="newsletter_subscribers.csv"`)
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			h.logger.WithError(err).Error("Error writing CSV export")
		}

	case "stats":
		stats, err := h.newsletter.Stats(r.Context())
		if err != nil {
			writeError(w, r, h.logger, err, false)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, stats)

	default:
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "Invalid format. Use ?format=csv or ?format=stats"})
	}
}
