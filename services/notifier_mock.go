package services

import (
	"context"
	"sync"
)

// RecordingNotifier is a Notifier for testing that keeps every published event
type RecordingNotifier struct {
	events []OrderEvent
	err    error
	mu     sync.RWMutex
}

// NewRecordingNotifier creates a new recording notifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// FailWith makes subsequent publishes return err (nil restores success)
func (m *RecordingNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Publish records the event
func (m *RecordingNotifier) Publish(ctx context.Context, event OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// Close is a no-op
func (m *RecordingNotifier) Close() error {
	return nil
}

// Events returns a copy of the recorded events
func (m *RecordingNotifier) Events() []OrderEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsFor returns the recorded events of one order
func (m *RecordingNotifier) EventsFor(orderID uint) []OrderEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OrderEvent
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded events
func (m *RecordingNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
