package security

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultCapacity    = 1000
	DefaultRecentLimit = 50
)

// EventType names a security-relevant occurrence.
type EventType string

const (
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventInvalidInput      EventType = "invalid_input"
	EventAuthFailure       EventType = "auth_failure"
	EventPermissionDenied  EventType = "permission_denied"
	EventUpstreamFailure   EventType = "upstream_failure"
)

type Event struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger is the write side used by services and middleware.
type Logger interface {
	LogEvent(event Event)
}

// EventLog is an in-memory ring buffer of recent security events. It is a
// diagnostic aid, not an audit trail, and is lost on restart.
type EventLog struct {
	mu     sync.Mutex
	buf    []Event
	start  int
	size   int
	logger *slog.Logger
	now    func() time.Time
	notify func(EventType)
}

func NewEventLog(capacity int, logger *slog.Logger) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{buf: make([]Event, capacity), logger: logger, now: time.Now}
}

// OnEvent registers a callback run after each event is stored.
func (l *EventLog) OnEvent(fn func(EventType)) *EventLog {
	l.notify = fn
	return l
}

// LogEvent appends an event, dropping the oldest once full. It never panics.
func (l *EventLog) LogEvent(event Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("security event log failed", "panic", r)
		}
	}()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	l.mu.Lock()
	idx := (l.start + l.size) % len(l.buf)
	l.buf[idx] = event
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.start = (l.start + 1) % len(l.buf)
	}
	l.mu.Unlock()

	l.logger.Warn("security event", "type", event.Type, "user_id", event.UserID, "details", event.Details)
	if l.notify != nil {
		l.notify(event.Type)
	}
}

// RecentEvents returns up to limit events, most recent last.
func (l *EventLog) RecentEvents(limit int) []Event {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit > l.size {
		limit = l.size
	}
	out := make([]Event, 0, limit)
	for i := l.size - limit; i < l.size; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
