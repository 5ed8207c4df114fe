// Package httpguard adapts the guard to net/http: it resolves the client
// address, asks for a verdict and turns denials into responses.
package httpguard

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/domain"
)

// Checker yields a verdict for one address.
type Checker interface {
	Check(ctx context.Context, addr netip.Addr) domain.Decision
}

type Options struct {
	Guard  Checker
	Logger log.Logger
	// BlockCode and BlockMessage form the denial response.
	BlockCode    int
	BlockMessage string
	// RedirectTo, when set, sends non-whitelisted clients there instead of
	// blocking them. Blacklisted clients are always blocked.
	RedirectTo string
	// LogBlocked logs every denied or redirected request.
	LogBlocked bool
	// TrustedHeader names a header set by a reverse proxy in front of this
	// process, e.g. X-Forwarded-For. Its last hop is the client. Empty uses
	// the socket peer.
	TrustedHeader string
}

// Handler holds the translation from verdicts to HTTP responses.
type Handler struct {
	guard         Checker
	logger        log.Logger
	blockCode     int
	blockMessage  string
	redirectTo    string
	logBlocked    bool
	trustedHeader string
}

func New(opts Options) *Handler {
	h := &Handler{
		guard:         opts.Guard,
		logger:        opts.Logger,
		blockCode:     opts.BlockCode,
		blockMessage:  opts.BlockMessage,
		redirectTo:    opts.RedirectTo,
		logBlocked:    opts.LogBlocked,
		trustedHeader: http.CanonicalHeaderKey(strings.TrimSpace(opts.TrustedHeader)),
	}
	if h.logger == nil {
		h.logger = log.NewNoopLogger()
	}
	if h.blockCode == 0 {
		h.blockCode = http.StatusForbidden
	}
	if h.blockMessage == "" {
		h.blockMessage = "403 Forbidden"
	}
	return h
}

// Middleware runs the guard before next. Allowed requests pass through
// untouched.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deny(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP is a forward-auth endpoint: 204 when allowed, otherwise the
// denial response. Reverse proxies call it before forwarding a request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.deny(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deny writes a denial response and reports whether it did.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request) bool {
	addr, ok := h.ClientAddr(r)
	if !ok {
		h.logRequest(r, netip.Addr{}, "[blocked] client address unknown")
		h.block(w)
		return true
	}

	d := h.guard.Check(r.Context(), addr)
	switch d.Verdict {
	case domain.Allowed:
		return false
	case domain.BlockedByNotWhitelisted:
		if h.redirectTo != "" {
			h.logRequest(r, addr, "[redirected] IP not whitelisted")
			http.Redirect(w, r, h.redirectTo, http.StatusFound)
			return true
		}
		h.logRequest(r, addr, "[blocked] IP not whitelisted")
	default:
		h.logRequest(r, addr, "[blocked] IP blacklisted")
	}
	h.block(w)
	return true
}

func (h *Handler) block(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(h.blockCode)
	_, _ = w.Write([]byte(h.blockMessage))
}

func (h *Handler) logRequest(r *http.Request, addr netip.Addr, msg string) {
	if !h.logBlocked {
		return
	}
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"peer":   r.RemoteAddr,
	}
	if addr.IsValid() {
		fields["ip"] = addr.String()
	}
	h.logger.Info(fields, msg)
}

// ClientAddr resolves the requester: the last hop of the trusted header when
// configured and present, else the socket peer. Only the last hop is the one
// the trusted proxy appended; earlier hops are whatever the client sent.
func (h *Handler) ClientAddr(r *http.Request) (netip.Addr, bool) {
	if h.trustedHeader != "" {
		if vals := r.Header.Values(h.trustedHeader); len(vals) > 0 {
			v := vals[len(vals)-1]
			if i := strings.LastIndexByte(v, ','); i >= 0 {
				v = v[i+1:]
			}
			if a, ok := parseHost(strings.TrimSpace(v)); ok {
				return a, true
			}
		}
	}
	return parseHost(r.RemoteAddr)
}

// parseHost accepts "addr", "addr:port" and "[v6]:port".
func parseHost(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return domain.NormalizeAddr(ap.Addr()), true
	}
	if a, err := domain.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return a, true
	}
	return netip.Addr{}, false
}
