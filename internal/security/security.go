// Package security holds the input validators and request helpers shared by
// the cart, the services and the HTTP layer.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"net"
	"net/http"
	"regexp"
	"strings"
)

const (
	MaxQuantity    = 999
	maxEmailLength = 254
)

var (
	productIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9]{1,50}$`)
	productRefPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern        = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	githubUserPattern   = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,37}[a-zA-Z0-9])?$`)
	searchStripPattern  = regexp.MustCompile(`[<>"'%;()&+]`)
	localhostVariations = []string{"127.0.0.1", "::1", "localhost"}
)

// IsValidProductID reports whether id is a cart-safe product identifier.
func IsValidProductID(id string) bool {
	return productIDPattern.MatchString(id)
}

// IsValidProductRef is the looser identifier check used by the repository
// access form, which also allows hyphens and underscores.
func IsValidProductRef(id string) bool {
	return productRefPattern.MatchString(id)
}

func IsValidQuantity(q int) bool {
	return q > 0 && q <= MaxQuantity
}

func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

func IsValidGitHubUsername(username string) bool {
	return githubUserPattern.MatchString(username)
}

// SanitizeSearchQuery strips characters that have no business in a search box
// and caps the length at 100.
func SanitizeSearchQuery(q string) string {
	q = strings.TrimSpace(searchStripPattern.ReplaceAllString(q, ""))
	if len(q) > 100 {
		q = q[:100]
	}
	return q
}

// EscapeHTML escapes user-provided text for inclusion in HTML bodies.
func EscapeHTML(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "/", "&#x2F;")
}

// ObfuscateEmail keeps the first character of the local part: j***@example.com.
func ObfuscateEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// HashKey returns the hex sha256 of s, used to key rate limits without keeping
// raw addresses or emails in memory.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:])
}

// TrustedProxies holds the peers allowed to report the client address through
// X-Forwarded-For or X-Real-IP. A nil *TrustedProxies trusts nobody.
type TrustedProxies struct {
	ips  map[string]bool
	nets []*net.IPNet
}

// NewTrustedProxies accepts plain addresses and CIDR ranges. Entries that are
// neither are ignored.
func NewTrustedProxies(entries []string) *TrustedProxies {
	t := &TrustedProxies{ips: make(map[string]bool)}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			t.nets = append(t.nets, n)
			continue
		}
		if ip := net.ParseIP(e); ip != nil {
			t.ips[ip.String()] = true
		}
	}
	return t
}

func (t *TrustedProxies) trusts(host string) bool {
	if t == nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if t.ips[ip.String()] {
		return true
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller address. Proxy headers are honoured only when
// the connection itself comes from a trusted proxy; otherwise the connection
// address is used. IPv4-mapped localhost is normalised to 127.0.0.1.
func (t *TrustedProxies) ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	if t.trusts(ip) {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
		} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = strings.TrimSpace(realIP)
		}
	}

	switch ip {
	case "":
		return "unknown"
	case "::ffff:127.0.0.1", "::ffff:localhost":
		return "127.0.0.1"
	}
	return ip
}

// IsLocalhost reports whether ip is one of the loopback spellings that are
// always admitted to the admin surface.
func IsLocalhost(ip string) bool {
	for _, l := range localhostVariations {
		if ip == l {
			return true
		}
	}
	return false
}
