package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// Paths that are never throttled.
var unlimitedPaths = []string{"/api/health"}

type rateLimiter interface {
	Allow() bool
}

// retryHinter is implemented by limiters that know when the next token is due.
type retryHinter interface {
	RetryAfter() time.Duration
}

type tokenBucket struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &tokenBucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (b *tokenBucket) Allow() bool {
	if b == nil || b.limiter == nil {
		return true
	}
	return b.limiter.Allow()
}

// RetryAfter is the time needed to refill a single token.
func (b *tokenBucket) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / float64(b.limiter.Limit()))
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lo.Contains(unlimitedPaths, r.URL.Path) || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		if hinter, ok := limiter.(retryHinter); ok {
			seconds := int(math.Ceil(hinter.RetryAfter().Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "resolution rate limit exceeded, please retry shortly")
	})
}
