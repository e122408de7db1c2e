package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// boxesPerToken is how many boxes one extra token pays for. Every request
// costs one token on admission; packing and overlap requests then pay
// ceil(boxes/boxesPerToken) more, capped so a single request never needs more
// than the whole bucket.
const boxesPerToken = 100

// rateLimiter is satisfied by *rate.Limiter.
type rateLimiter interface {
	AllowN(now time.Time, n int) bool
	Burst() int
}

const budgetContextKey contextKey = "budget"

// requestBudget lets handlers charge the request's limiter once they know
// how much work the request carries.
type requestBudget struct {
	limiter rateLimiter
	now     time.Time
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		if !limiter.AllowN(now, 1) {
			writeRateLimited(w)
			return
		}
		ctx := context.WithValue(r.Context(), budgetContextKey, &requestBudget{limiter: limiter, now: now})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// boxCost returns the extra tokens a request with the given number of boxes
// pays on top of its admission token.
func boxCost(boxes, burst int) int {
	if boxes <= 0 {
		return 0
	}
	cost := (boxes + boxesPerToken - 1) / boxesPerToken
	return min(cost, burst-1)
}

// chargeBoxes takes the box cost from the request's budget. When the bucket
// cannot cover it, a 429 is written and false is returned. Requests that did
// not pass through the limiter are always allowed.
func chargeBoxes(ctx context.Context, w http.ResponseWriter, boxes int) bool {
	budget, ok := ctx.Value(budgetContextKey).(*requestBudget)
	if !ok {
		return true
	}
	cost := boxCost(boxes, budget.limiter.Burst())
	if cost <= 0 || budget.limiter.AllowN(budget.now, cost) {
		return true
	}
	writeRateLimited(w)
	return false
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
}
