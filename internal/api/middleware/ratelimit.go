package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/fluxhive/fluxhive/pkg/logger"
)

// RateLimit applies a fixed-window limit per authenticated user (falling back
// to the remote address). Redis being down fails open: generation limits are
// a throttle, not a security boundary.
func RateLimit(client *redis.Client, name string, limit int, window time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.WithComponent("rate_limit")

			caller, ok := UserID(r)
			if !ok {
				caller = r.RemoteAddr
			}
			key := fmt.Sprintf("ratelimit:%s:%s", name, caller)

			// Count and expiry go through one transaction; the key can never
			// be left without a TTL.
			pipe := client.TxPipeline()
			incr := pipe.Incr(r.Context(), key)
			pipe.ExpireNX(r.Context(), key, window)
			if _, err := pipe.Exec(r.Context()); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if incr.Val() > int64(limit) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
