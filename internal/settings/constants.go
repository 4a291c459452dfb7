package settings

// DB config keys and defaults for settings.
const (
	// RateLimitKey controls the per-key request quota per window.
	RateLimitKey = "RATE_LIMIT"
	// RateLimitWindowSecondsKey controls the throttle window length in seconds.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DomainSyncIntervalSecondsKey controls the catalog sync interval.
	DomainSyncIntervalSecondsKey = "DOMAIN_SYNC_INTERVAL_SECONDS"

	// DefaultRateLimit is the fallback request quota per window.
	DefaultRateLimit = 100
	// DefaultRateLimitWindowSeconds is the fallback throttle window (one hour).
	DefaultRateLimitWindowSeconds = 3600
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "pwp:rl"
	// DefaultDomainSyncIntervalSeconds is the fallback catalog sync interval (one day).
	DefaultDomainSyncIntervalSeconds = 86400
)
