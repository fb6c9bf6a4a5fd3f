package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/tenant"
)

// KeyByIPAndTenant buckets requests by client IP within the resolved village,
// so one busy village cannot exhaust another's budget. Used on the auth
// endpoints.
func KeyByIPAndTenant(r *http.Request) string {
	slug := tenant.SlugFrom(r.Context())
	if slug == "" {
		slug = "global"
	}
	return slug + ":" + common.ClientIP(r)
}

// Config derives the limit key and thresholds for one route group.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies the limiter ahead of the wrapped handler. Limiter store
// errors fail open: blocking all logins because Redis blinked is worse than
// briefly not limiting.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		h.writeHeaders(w, remaining, resetAt)
		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h Handler) writeHeaders(w http.ResponseWriter, remaining int, resetAt time.Time) {
	limit := h.Config.Max
	if limit < 0 {
		limit = 0
	}
	out := w.Header()
	out.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	out.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	out.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}
