package limiter

import (
	"sync"

	"golang.org/x/time/rate"
)

type IPRateLimiter struct {
	ips   map[string]*rate.Limiter
	mu    *sync.Mutex
	limit rate.Limit
	burst int
}

// NewIPRateLimiter new IP rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*rate.Limiter),
		mu:    &sync.Mutex{},
		limit: r,
		burst: b,
	}
}

// GetLimiter get limiter
func (r *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.ips[ip] = limiter
	}

	return limiter
}

// Allow report whether a request from ip may proceed now
func (r *IPRateLimiter) Allow(ip string) bool {
	return r.GetLimiter(ip).Allow()
}
