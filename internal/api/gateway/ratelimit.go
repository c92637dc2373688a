// Package gateway provides API gateway functionality including rate limiting
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/observability"
)

// RateLimiter is a Redis-backed fixed-window limiter keyed by client and
// endpoint.
type RateLimiter struct {
	redis   *redis.Client
	logger  *zap.Logger
	metrics *observability.Metrics
	config  RateLimitConfig
}

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	Enabled           bool            `yaml:"enabled"`
	RequestsPerWindow int             `yaml:"requests_per_window"`
	Window            time.Duration   `yaml:"window"`
	KeyPrefix         string          `yaml:"key_prefix"`
	Endpoints         []EndpointLimit `yaml:"endpoints"`
	IncludeHeaders    bool            `yaml:"include_headers"`
}

// EndpointLimit narrows the limit for requests whose path matches Pattern
// (doublestar syntax, e.g. "/api/v1/sessions/*/export").
type EndpointLimit struct {
	Name              string `yaml:"name"`
	Pattern           string `yaml:"pattern"`
	Method            string `yaml:"method"`
	RequestsPerWindow int    `yaml:"requests_per_window"`
	CostMultiplier    int    `yaml:"cost_multiplier"`
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
	Endpoint   string
	Reason     string
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerWindow: 120,
		Window:            time.Minute,
		KeyPrefix:         "cdrforge:ratelimit:",
		Endpoints:         DefaultEndpointLimits(),
		IncludeHeaders:    true,
	}
}

// DefaultEndpointLimits returns the limits for the expensive endpoints.
func DefaultEndpointLimits() []EndpointLimit {
	return []EndpointLimit{
		// Upload parses and normalizes a whole file.
		{Name: "upload", Pattern: "/api/v1/sessions", Method: http.MethodPost, RequestsPerWindow: 20, CostMultiplier: 1},
		{Name: "detect", Pattern: "/api/v1/detect", Method: http.MethodPost, RequestsPerWindow: 30, CostMultiplier: 1},
		{Name: "analytics", Pattern: "/api/v1/**/analytics/*", RequestsPerWindow: 60, CostMultiplier: 2},
		{Name: "export", Pattern: "/api/v1/sessions/*/export", Method: http.MethodGet, RequestsPerWindow: 10, CostMultiplier: 1},
	}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger, metrics *observability.Metrics) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = defaults.RequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		redis:   redisClient,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
	}
}

var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return {current, redis.call('PTTL', KEYS[1])}
`)

// Check counts one request from clientID against the endpoint's window.
// Redis failures allow the request.
func (rl *RateLimiter) Check(ctx context.Context, clientID, path, method string) *RateLimitResult {
	name, limit := rl.limitFor(path, method)
	now := time.Now()

	redisKey := fmt.Sprintf("%s%s:%s", rl.config.KeyPrefix, name, clientID)
	vals, err := incrScript.Run(ctx, rl.redis, []string{redisKey}, rl.config.Window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		rl.logger.Warn("Rate limit check failed, allowing request",
			zap.String("endpoint", name),
			zap.Error(err),
		)
		return &RateLimitResult{Allowed: true, Limit: limit, Remaining: limit, Endpoint: name}
	}

	count := int(vals[0])
	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = rl.config.Window
	}

	result := &RateLimitResult{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		Limit:     limit,
		ResetAt:   now.Add(ttl),
		Endpoint:  name,
	}
	if !result.Allowed {
		result.RetryAfter = ttl
		result.Reason = "Rate limit exceeded"
	}
	return result
}

// limitFor returns the bucket name and effective limit for a request. The
// first matching endpoint wins; its cost multiplier divides the limit.
func (rl *RateLimiter) limitFor(path, method string) (string, int) {
	for _, ep := range rl.config.Endpoints {
		if ep.Method != "" && !strings.EqualFold(ep.Method, method) {
			continue
		}
		if ok, _ := doublestar.Match(ep.Pattern, path); !ok {
			continue
		}
		limit := rl.config.RequestsPerWindow
		if ep.RequestsPerWindow > 0 && ep.RequestsPerWindow < limit {
			limit = ep.RequestsPerWindow
		}
		if ep.CostMultiplier > 1 {
			limit /= ep.CostMultiplier
		}
		name := ep.Name
		if name == "" {
			name = ep.Pattern
		}
		return name, max(limit, 1)
	}
	return "default", rl.config.RequestsPerWindow
}

// Middleware returns an HTTP middleware for rate limiting. getClientID may
// be nil, in which case the client address is used.
func (rl *RateLimiter) Middleware(getClientID func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.redis == nil || !rl.config.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if getClientID != nil {
				clientID = getClientID(r)
			}
			if clientID == "" {
				clientID = ClientIP(r)
			}

			result := rl.Check(r.Context(), clientID, r.URL.Path, r.Method)

			if rl.config.IncludeHeaders {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				if !result.ResetAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
				}
			}

			if !result.Allowed {
				rl.metrics.ObserveRateLimited(result.Endpoint)
				rl.logger.Info("Request rate limited",
					zap.String("client", clientID),
					zap.String("endpoint", result.Endpoint),
				)
				retry := int(result.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":%q,"retry_after":%d}`, result.Reason, retry)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
