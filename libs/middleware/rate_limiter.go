package middleware

import (
	"context"
	"net/http"

	"github.com/gomodule/redigo/redis"
	"github.com/throttled/throttled"
	"github.com/throttled/throttled/store/memstore"
	"github.com/throttled/throttled/store/redigostore"

	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/logging"
)

// IPRateLimiterWithStore applies a GCRA leaky bucket limit keyed by remote
// address, path and method against the provided store. Stores range from
// process-local memory to redis for multi-instance coordination, see
// https://github.com/throttled/throttled/tree/master/store.
func IPRateLimiterWithStore(
	ctx context.Context,
	perMin int,
	burst int,
	store throttled.GCRAStore,
) func(next http.Handler) http.Handler {
	logger := logging.Logger(ctx, "middleware.IPRateLimiterWithStore")

	rateLimiter, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate:  throttled.PerMin(perMin),
		MaxBurst: burst,
	})
	if err != nil {
		logger.Fatal().Err(err)
	}

	httpRateLimiter := throttled.HTTPRateLimiter{
		RateLimiter: rateLimiter,
		VaryBy: &throttled.VaryBy{
			RemoteAddr: true,
			Path:       true,
			Method:     true,
		},
	}

	return func(next http.Handler) http.Handler {
		limited := httpRateLimiter.RateLimit(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// cors preflights can burst
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// operator tokens are exempt
			if isSimpleTokenInContext(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			limited.ServeHTTP(w, r)
		})
	}
}

// RateLimiter limits per client IP using a process-local store; counts do not
// synchronize across instances.
func RateLimiter(ctx context.Context, perMin int) func(next http.Handler) http.Handler {
	logger := logging.Logger(ctx, "middleware.RateLimiter")

	store, err := memstore.New(65536)
	if err != nil {
		logger.Fatal().Err(err)
	}

	burst := 0
	if b, ok := ctx.Value(appctx.RateLimiterBurstCTXKey).(int); ok {
		burst = b
	}

	return IPRateLimiterWithStore(ctx, perMin, burst, store)
}

// RateLimiterRedisStore limits per client IP with counts coordinated between
// instances through redis.
func RateLimiterRedisStore(
	ctx context.Context,
	perMin int,
	burst int,
	redisPool *redis.Pool,
	keyPrefix string,
	db int,
) func(next http.Handler) http.Handler {
	logger := logging.Logger(ctx, "middleware.RateLimiterRedisStore")

	store, err := redigostore.New(redisPool, keyPrefix, db)
	if err != nil {
		logger.Fatal().Err(err)
	}

	return IPRateLimiterWithStore(ctx, perMin, burst, store)
}
