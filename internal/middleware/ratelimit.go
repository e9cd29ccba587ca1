package middleware

import (
	"net/http"

	"github.com/benvon/habit-tracker/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultRate applies when no rate is configured
const DefaultRate = "20-S"

const rateLimitPrefix = "habit-tracker:ratelimit"

// RateLimitKey buckets authenticated callers by user and everyone else by client IP
func RateLimitKey(r *http.Request) string {
	if id, ok := request.UserID(r); ok {
		return "user:" + id.String()
	}
	return "ip:" + request.ClientIP(r)
}

// RateLimit returns ulule/limiter middleware for the formatted rate (e.g. "20-S").
// Counters live in Redis when a client is given and in process memory otherwise.
func RateLimit(redisClient *redis.Client, formattedRate string) (func(http.Handler) http.Handler, error) {
	if formattedRate == "" {
		formattedRate = DefaultRate
	}
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: rateLimitPrefix})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
	}

	mw := stdlibmw.NewMiddleware(limiter.New(store, rate), stdlibmw.WithKeyGetter(RateLimitKey))
	return mw.Handler, nil
}
