// Package realtime fans out session and attendance change notifications to subscribers.
package realtime

import (
	"context"
	"sync"
	"time"
)

// Event types published by the session lifecycle.
const (
	EventSessionStarted     = "session.started"
	EventSessionClosed      = "session.closed"
	EventAttendanceRecorded = "attendance.recorded"
)

// Event notifies subscribers that a session or its attendance changed.
// Subscribers re-query current state instead of trusting the payload.
type Event struct {
	Type       string    `json:"type"`
	Topic      string    `json:"topic"`
	SessionID  string    `json:"session_id"`
	LecturerID string    `json:"lecturer_id,omitempty"`
	StudentID  string    `json:"student_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Broker publishes events and hands out topic subscriptions.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, topics ...string) (*Subscription, error)
	Close() error
}

// LecturerTopic is the topic carrying session changes for one lecturer.
func LecturerTopic(lecturerID string) string {
	return "lecturer:" + lecturerID
}

// SessionTopic is the topic carrying attendance changes for one session.
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

const subscriptionBuffer = 16

// Subscription delivers events until Close is called or its context ends.
type Subscription struct {
	ch      chan Event
	stop    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	cleanup func()
}

func newSubscription(cleanup func()) *Subscription {
	return &Subscription{ch: make(chan Event, subscriptionBuffer), stop: make(chan struct{}), cleanup: cleanup}
}

// C returns the event channel. It is closed once the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes and closes the event channel. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cleanup != nil {
			s.cleanup()
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		close(s.stop)
	})
}

// deliver hands the event to the subscriber without blocking. A full buffer
// already holds a pending notification, so dropping keeps subscribers current.
func (s *Subscription) deliver(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

func (s *Subscription) closeOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stop:
		}
	}()
}
