// Package notify turns unhandled cache failures into user-facing notifications.
package notify

import (
	"context"
	"sync"
	"time"

	"grocerylist/application/ports"
	pkgerrors "grocerylist/pkg/errors"

	"go.uber.org/zap"
)

// DefaultCapacity is the number of notifications kept by NewLogSink
const DefaultCapacity = 20

// Entry is one delivered notification
type Entry struct {
	pkgerrors.Notification
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// LogSink logs every failure and remembers the most recent ones
type LogSink struct {
	mu     sync.Mutex
	ring   []Entry
	next   int
	full   bool
	logger *zap.Logger
	now    func() time.Time
}

var _ ports.ErrorSink = (*LogSink)(nil)

// NewLogSink creates a sink keeping up to capacity notifications
func NewLogSink(logger *zap.Logger, capacity int) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LogSink{
		ring:   make([]Entry, capacity),
		logger: logger,
		now:    time.Now,
	}
}

// Notify classifies err and records it
func (s *LogSink) Notify(ctx context.Context, source string, err error) {
	if err == nil {
		return
	}
	n := pkgerrors.Classify(err)

	s.logger.Error(n.Title,
		zap.String("source", source),
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
		zap.Int("status", n.Status),
		zap.Error(err),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = Entry{Notification: n, Source: source, At: s.now()}
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
}

// Recent returns the kept notifications, newest first
func (s *LogSink) Recent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.next
	if s.full {
		size = len(s.ring)
	}
	out := make([]Entry, 0, size)
	for i := 1; i <= size; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// Clear forgets every notification
func (s *LogSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		s.ring[i] = Entry{}
	}
	s.next = 0
	s.full = false
}
