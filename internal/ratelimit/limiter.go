package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Config bounds one named limiter.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Result is the outcome of a single CheckLimit call.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// ResetTimeMillis returns the window end as epoch milliseconds.
func (r Result) ResetTimeMillis() int64 {
	return r.ResetTime.UnixMilli()
}

// Store holds fixed-window counters. Implementations must make the
// read-modify-write of a single key atomic.
type Store interface {
	Hit(ctx context.Context, key string, cfg Config, now time.Time) (Result, error)
}

// Limiter is a named fixed-window limiter. Keys from different limiters never
// collide because the name prefixes every key.
type Limiter struct {
	name  string
	cfg   Config
	store Store
	now   func() time.Time
}

func NewLimiter(name string, cfg Config, store Store) *Limiter {
	return &Limiter{name: name, cfg: cfg, store: store, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Name() string { return l.name }

func (l *Limiter) Config() Config { return l.cfg }

// CheckLimit counts one request for identifier.
func (l *Limiter) CheckLimit(ctx context.Context, identifier string) (Result, error) {
	return l.store.Hit(ctx, l.name+":"+identifier, l.cfg, l.now())
}

// Registry owns the named limiters of a process.
type Registry struct {
	mu       sync.RWMutex
	store    Store
	limiters map[string]*Limiter
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, limiters: make(map[string]*Limiter)}
}

// Register configures a limiter once. Registering the same name twice is an error.
func (r *Registry) Register(name string, cfg Config) (*Limiter, error) {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return nil, errors.Newf("rate limiter %q: max requests and window must be positive", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.limiters[name]; exists {
		return nil, errors.Newf("rate limiter %q already registered", name)
	}
	l := NewLimiter(name, cfg, r.store)
	r.limiters[name] = l
	return l, nil
}

func (r *Registry) Get(name string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[name]
	return l, ok
}
