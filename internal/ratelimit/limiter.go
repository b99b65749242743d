package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/prometheus"
)

// Result carries the outcome of a consume call with the metadata a client
// needs to self-correct (X-RateLimit-* headers, Retry-After).
type Result struct {
	Allowed       bool
	Limit         int
	WindowSeconds int
	Remaining     int
	ResetAt       time.Time
	RetryAfter    time.Duration
}

type bucketKey struct {
	tenantID  string
	limitType string
}

type bucket struct {
	limiter *rate.Limiter
	rule    model.RateLimitRule
	resetAt time.Time
}

// Limiter is a token-bucket rate limiter keyed by (tenant, limit type).
// Buckets are created lazily from the tenant's configuration and evicted by
// a periodic sweep once their window has passed. One Limiter instance is
// owned by the service and injected into the pipeline.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	log     *zap.Logger
	now     func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// New creates a limiter and starts its eviction sweep.
func New(sweepInterval time.Duration, log *zap.Logger) *Limiter {
	l := &Limiter{
		buckets:       map[bucketKey]*bucket{},
		log:           log,
		now:           time.Now,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	if sweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Consume takes cost tokens from the tenant's bucket for the limit type.
// Internal failures (no usable configuration, invalid cost) never block the
// request: they are logged and treated as allowed, since availability takes
// precedence over strict limiting.
func (l *Limiter) Consume(tc *tenant.Context, limitType string, cost int) Result {
	if cost <= 0 {
		cost = 1
	}

	rule, ok := tc.RateLimitRule(limitType)
	if !ok || rule.MaxRequests <= 0 || rule.WindowSeconds <= 0 {
		l.log.Warn("Rate limit configuration unavailable, allowing request",
			zap.String("tenant_id", tc.ID),
			zap.String("limit_type", limitType))
		return Result{Allowed: true}
	}

	window := time.Duration(rule.WindowSeconds) * time.Second
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucketKey{tenantID: tc.ID, limitType: limitType}
	b, exists := l.buckets[key]
	if !exists || b.rule != rule {
		// Lazily created; configuration changes rebuild the bucket
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(float64(rule.MaxRequests)/window.Seconds()), rule.MaxRequests),
			rule:    rule,
			resetAt: now.Add(window),
		}
		l.buckets[key] = b
		prometheus.RateLimitBucketGauge.Set(float64(len(l.buckets)))
	}

	allowed := b.limiter.AllowN(now, cost)
	if allowed {
		b.resetAt = now.Add(window)
	}

	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:       allowed,
		Limit:         rule.MaxRequests,
		WindowSeconds: rule.WindowSeconds,
		Remaining:     remaining,
		ResetAt:       b.resetAt,
	}
	if !allowed {
		retry := b.resetAt.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		result.RetryAfter = retry
	}
	return result
}

// BucketCount returns the number of live buckets.
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep removes buckets whose reset time has passed, bounding memory.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
		}
	}
	prometheus.RateLimitBucketGauge.Set(float64(len(l.buckets)))
}

// Stop terminates the eviction sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}
