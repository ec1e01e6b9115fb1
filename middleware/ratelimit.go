package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	sessioncore "github.com/tverran/sessioncore"
)

// RateLimit admits or rejects requests at the given tier. The client
// identity is the authenticated subject when [RequireAuth] ran earlier in
// the chain, otherwise the network identity from [clientIP]. Rejections
// get a 429 with Retry-After in whole seconds, rounded up.
func RateLimit(engine *sessioncore.Engine, tier sessioncore.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientID := clientIP(r)
			if res, ok := AuthResultFromContext(r.Context()); ok {
				clientID = res.UserID
			}

			err := engine.CheckRateLimit(r.Context(), clientID, tier)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var limited *sessioncore.RateLimitedError
			if errors.As(err, &limited) {
				seconds := int64(limited.RetryAfter / time.Second)
				if limited.RetryAfter%time.Second != 0 {
					seconds++
				}
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
			}
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		})
	}
}
