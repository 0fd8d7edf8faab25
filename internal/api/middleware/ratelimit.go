package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/phrazzld/taskforge/internal/api/shared"
	"golang.org/x/time/rate"
)

// RateLimit answers 429 once limiter runs out of tokens. The limiter is
// shared by every caller of the wrapped routes.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reservation := limiter.Reserve()
			if !reservation.OK() {
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					"Too many requests", fmt.Errorf("rate limiter burst is zero"))
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					"Too many requests", fmt.Errorf("rate limit exceeded, retry in %s", delay))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
