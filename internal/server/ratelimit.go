package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
)

// rateLimit charges one event per request to the caller's budget.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.admit(w, r, 1) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// admit charges n events to the client and writes 429 when over budget.
func (s *server) admit(w http.ResponseWriter, r *http.Request, n int64) bool {
	if s.deps.RateLimiter == nil {
		return true
	}
	res := s.deps.RateLimiter.Allow(clientKey(r), n)
	h := w.Header()
	h["X-Ratelimit-Limit"] = []string{strconv.FormatInt(res.Limit, 10)}
	h["X-Ratelimit-Remaining"] = []string{strconv.FormatInt(res.Remaining, 10)}
	if res.Allowed {
		return true
	}
	h["Retry-After"] = []string{strconv.Itoa(int(math.Ceil(res.RetryAfterSeconds)))}
	writeJSON(w, http.StatusTooManyRequests, errorResponse("rate limit exceeded"))
	return false
}

// clientKey identifies the caller by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
