package publisher

import (
	"context"
	"sync"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains every event that was published.
	Events []Event

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Disconnected makes IsConnected report false.
	Disconnected bool

	published chan Event
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{published: make(chan Event, 64)}
}

// Publish records the event.
func (f *FakePublisher) Publish(_ context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, event)
	select {
	case f.published <- event:
	default:
	}
	return nil
}

// Published signals each successfully published event.
func (f *FakePublisher) Published() <-chan Event {
	return f.published
}

// SetPublishError makes subsequent Publish calls fail with err.
func (f *FakePublisher) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}

// Snapshot returns a copy of the recorded events.
func (f *FakePublisher) Snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.Events...)
}

// IsClosed reports whether Close was called.
func (f *FakePublisher) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

// IsConnected reports the simulated broker connection state.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Disconnected && !f.Closed
}

// SetConnected toggles the simulated broker connection.
func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	f.Disconnected = !connected
	f.mu.Unlock()
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
