package ratelimit

import (
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter — фиксированное окно на ключ. Применяется к публичным
// клиентским маршрутам, где нет сессии и ключом служит IP.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	bucket map[string]*entry
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		bucket: make(map[string]*entry),
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	row, ok := l.bucket[key]
	if !ok || row.resetAt.Before(now) {
		l.bucket[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if row.count >= l.limit {
		return false
	}
	row.count++
	return true
}
