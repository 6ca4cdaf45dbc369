// Package ratelimit holds the fixed-window limiter that guards the public
// invitation endpoints, and the client address helper it is keyed on.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type windowState struct {
	start time.Time
	count int
}

// FixedWindow allows Limit events per key in each Window. A non-positive
// limit disables it.
type FixedWindow struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	byKey     map[string]windowState
	lastSweep time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:  limit,
		window: window,
		byKey:  map[string]windowState{},
	}
}

func (l *FixedWindow) Allow(key string, now time.Time) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	if key == "" {
		key = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	cur := l.byKey[key]
	if cur.start.IsZero() || now.Sub(cur.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		return true
	}
	if cur.count >= l.limit {
		return false
	}
	cur.count++
	l.byKey[key] = cur
	return true
}

// sweep drops expired windows at most once per window.
func (l *FixedWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for k, st := range l.byKey {
		if now.Sub(st.start) >= l.window {
			delete(l.byKey, k)
		}
	}
	l.lastSweep = now
}

// ClientIP returns the first X-Forwarded-For hop when trustProxy is set,
// and the connection address otherwise.
func ClientIP(r *http.Request, trustProxy bool) string {
	if r == nil {
		return "unknown"
	}
	if trustProxy {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if v := strings.TrimSpace(first); v != "" {
				return v
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}
	return strings.TrimSpace(r.RemoteAddr)
}
