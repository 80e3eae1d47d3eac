package main

import (
	"sync"
	"time"

	"hydra/internal/constants"
)

// RateLimiter is a fixed-window per-IP request limiter for the capture
// endpoint.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows max requests per ip in each window. Non-positive
// arguments fall back to the defaults.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = constants.DefaultRateLimitRequests
	}
	if window <= 0 {
		window = constants.DefaultRateLimitWindowSec * time.Second
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request from ip fits in the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		if len(rl.buckets) >= maxTrackedIPs {
			rl.evictExpiredLocked(now)
		}
		rl.buckets[ip] = &bucket{count: 1, windowStart: now}
		return true
	}

	if b.count >= rl.max {
		return false
	}
	b.count++
	return true
}

// maxTrackedIPs bounds memory used by the bucket map; expired buckets are
// dropped once the map reaches this size.
const maxTrackedIPs = 10000

func (rl *RateLimiter) evictExpiredLocked(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.windowStart) >= rl.window {
			delete(rl.buckets, ip)
		}
	}
}
