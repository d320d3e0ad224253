package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

type AdminAuthHandler struct {
	logger       *logrus.Logger
	gate         *service.AdminGate
	secureCookie bool
}

func NewAdminAuthHandler(logger *logrus.Logger, gate *service.AdminGate, secureCookie bool) *AdminAuthHandler {
	return &AdminAuthHandler{logger: logger, gate: gate, secureCookie: secureCookie}
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (h *AdminAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req adminLoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err, false)
			return
		}
		token, err := h.gate.Login(clientIP(r), req.Password)
		if err != nil {
			writeError(w, r, h.logger, err, false)
			return
		}
		http.SetCookie(w, h.cookie(token, int(service.AdminSessionTTL.Seconds())))
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})

	case http.MethodGet:
		authenticated := adminAuth{gate: h.gate, logger: h.logger}.check(r) == nil
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"authenticated": authenticated})

	case http.MethodDelete:
		http.SetCookie(w, h.cookie("", -1))
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})

	default:
		methodNotAllowed(w, r, h.logger)
	}
}

func (h *AdminAuthHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     AdminCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}
