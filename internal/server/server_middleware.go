package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.DebugContext(r.Context(), "Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// userLimiter hands out one token bucket per user. Buckets idle long
// enough to have refilled are swept.
type userLimiter struct {
	limit  rate.Limit
	burst  int
	refill time.Duration

	mu       sync.Mutex
	limiters map[string]*userBucket
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(perMinute, burst int) *userLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 3
	}
	interval := time.Minute / time.Duration(perMinute)
	l := &userLimiter{
		limit:    rate.Every(interval),
		burst:    burst,
		refill:   interval * time.Duration(burst),
		limiters: make(map[string]*userBucket),
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.sweep(time.Now())
		}
	}()
	return l
}

func (l *userLimiter) Allow(userID string) bool {
	return l.allowAt(userID, time.Now())
}

func (l *userLimiter) allowAt(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.refill {
			delete(l.limiters, id)
		}
	}
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// rateLimitAccept throttles invite code guesses per user.
func (s *Server) rateLimitAccept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFromContext(s.cfg.AuthEnabled, r)
		if !s.acceptLimiter.Allow(userID) {
			logger.Warn("Invite accept rate limited", "user_id", userID)
			RecordPartnershipEvent("accept", "rate_limited")
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"too many attempts"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
