package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"digistore/internal/security"
	"digistore/internal/service"
)

const AdminCookieName = "admin_auth"

type contextKey int

const clientIPKey contextKey = iota

// ClientAddress resolves the caller address once per request, believing proxy
// headers only from proxies.
func ClientAddress(proxies *security.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey, proxies.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP returns the address stored by ClientAddress, or the connection
// address when the middleware did not run.
func clientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok {
		return ip
	}
	var none *security.TrustedProxies
	return none.ClientIP(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"url":         r.URL.Path,
				"remote_addr": clientIP(r),
				"user_agent":  r.UserAgent(),
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("Handled request")
		})
	}
}

type adminAuth struct {
	gate   *service.AdminGate
	logger *logrus.Logger
}

func (a adminAuth) check(r *http.Request) error {
	token := ""
	if c, err := r.Cookie(AdminCookieName); err == nil {
		token = c.Value
	}
	return a.gate.Verify(clientIP(r), token)
}

// require writes the rejection and returns false when r is not an admin
// request.
func (a adminAuth) require(w http.ResponseWriter, r *http.Request) bool {
	if err := a.check(r); err != nil {
		writeError(w, r, a.logger, err, true)
		return false
	}
	return true
}

// AdminOnly guards every method of next.
func AdminOnly(gate *service.AdminGate, logger *logrus.Logger) func(http.Handler) http.Handler {
	auth := adminAuth{gate: gate, logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.require(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
