package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"digistore/internal/security"
)

const AdminSessionTTL = 24 * time.Hour

// AdminGate checks the shared admin password and the source address, and
// issues tokens of the form "<unix issue time>.<hex hmac-sha256>".
type AdminGate struct {
	password string
	allowed  map[string]bool
	logger   *logrus.Logger
	now      func() time.Time
}

func NewAdminGate(logger *logrus.Logger, password string, allowedIPs []string) *AdminGate {
	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}
	return &AdminGate{password: password, allowed: allowed, logger: logger, now: time.Now}
}

func (g *AdminGate) IPAllowed(ip string) bool {
	return security.IsLocalhost(ip) || g.allowed[ip]
}

// Login returns a session token when the address is allowed and the password
// matches.
func (g *AdminGate) Login(ip, password string) (string, error) {
	if !g.IPAllowed(ip) {
		g.logger.WithField("ip", ip).Warn("Admin login from disallowed address")
		return "", ErrForbidden
	}
	if g.password == "" {
		g.logger.Error("Admin login attempted but no admin password is configured")
		return "", ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) != 1 {
		g.logger.WithField("ip", ip).Warn("Admin login with wrong password")
		return "", ErrUnauthorized
	}
	g.logger.WithField("ip", ip).Info("Admin logged in")
	return g.issue(g.now()), nil
}

// Verify checks a token presented on a privileged request.
func (g *AdminGate) Verify(ip, token string) error {
	if !g.IPAllowed(ip) {
		return ErrForbidden
	}
	if g.password == "" || token == "" {
		return ErrUnauthorized
	}

	ts, sig, ok := strings.Cut(token, ".")
	if !ok {
		return ErrUnauthorized
	}
	if !hmac.Equal([]byte(sig), []byte(g.sign(ts))) {
		return ErrUnauthorized
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrUnauthorized
	}
	age := g.now().Sub(time.Unix(issued, 0))
	if age < 0 || age > AdminSessionTTL {
		return ErrUnauthorized
	}
	return nil
}

func (g *AdminGate) issue(at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return ts + "." + g.sign(ts)
}

func (g *AdminGate) sign(ts string) string {
	mac := hmac.New(sha256.New, []byte(g.password))
	mac.Write([]byte("admin-session:" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
