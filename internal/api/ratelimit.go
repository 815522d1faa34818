package api

import (
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/httprate"

	"barter/internal/constants"
	"barter/internal/ratelimit"
)

// RateLimitGateway applies one token bucket per client IP to every request
// except preflights and skipped paths.
type RateLimitGateway struct {
	limiter   ratelimit.Limiter
	resolver  *ClientIPResolver
	skipPaths []string

	allowed atomic.Uint64
	limited atomic.Uint64
}

type RateLimitStats struct {
	Allowed uint64 `json:"allowed"`
	Limited uint64 `json:"limited"`
}

func NewRateLimitGateway(limiter ratelimit.Limiter, resolver *ClientIPResolver, skipPaths []string) *RateLimitGateway {
	return &RateLimitGateway{
		limiter:   limiter,
		resolver:  resolver,
		skipPaths: skipPaths,
	}
}

func (g *RateLimitGateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || g.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		decision := g.limiter.Allow(r.Context(), g.resolver.Resolve(r))
		if !decision.Allowed {
			g.limited.Add(1)
			setRetryHeaders(w, decision.RetryAfter)
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			writeError(w, http.StatusTooManyRequests, constants.ErrCodeRateLimited, "Too many requests, please try again later")
			return
		}

		g.allowed.Add(1)
		if decision.Remaining != ratelimit.UnknownRemaining {
			w.Header().Set("X-Rate-Limit-Remaining", strconv.Itoa(decision.Remaining))
		}
		next.ServeHTTP(w, r)
	})
}

func (g *RateLimitGateway) Stats() RateLimitStats {
	return RateLimitStats{
		Allowed: g.allowed.Load(),
		Limited: g.limited.Load(),
	}
}

func (g *RateLimitGateway) skipped(p string) bool {
	for _, pattern := range g.skipPaths {
		if matchSkipPath(pattern, p) {
			return true
		}
	}
	return false
}

// matchSkipPath supports exact paths, "/dir/**" for a subtree and
// path.Match globs.
func matchSkipPath(pattern, p string) bool {
	if base, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == base || strings.HasPrefix(p, base+"/")
	}
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}
	return p == pattern
}

// setRetryHeaders sends the standard Retry-After and the
// X-Rate-Limit-Retry-After-Seconds header older clients read.
func setRetryHeaders(w http.ResponseWriter, d time.Duration) {
	seconds := strconv.Itoa(retryAfterSeconds(d))
	w.Header().Set("Retry-After", seconds)
	w.Header().Set("X-Rate-Limit-Retry-After-Seconds", seconds)
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// authRouteLimit guards credential endpoints against brute force on top of
// the gateway bucket.
func authRouteLimit(resolver *ClientIPResolver, requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return resolver.Resolve(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			setRetryHeaders(w, window)
			writeError(w, http.StatusTooManyRequests, constants.ErrCodeRateLimited, "Too many requests, please try again later")
		}),
	)
}
