package orchestrator

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event types published during a task's lifecycle.
const (
	EventDiagnostic = "diagnostic"
	EventRunning    = "running"
	EventCompleted  = "completed"
	EventFailed     = "failed"
)

// Event is one lifecycle notification for a task.
type Event struct {
	Type    string    `json:"type"`
	TaskID  string    `json:"task_id"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// EventBroker fans out per-task lifecycle events to subscribers.
// It is safe for concurrent use.
//
// A topic lives only while it has subscribers and its task is running, so
// the broker holds no state for finished tasks. A subscriber that arrives
// after Close gets a channel that is never written to; callers check the
// task status after subscribing.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events for the given task and an
// unsubscribe function. The channel is closed by Close.
func (b *EventBroker) Subscribe(taskID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[taskID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; !ok {
			return
		}
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[taskID] == t {
			delete(b.topics, taskID)
		}
	}
}

// Publish sends an event to all subscribers of its task.
// Events are dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.TaskID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers; execution never blocks on SSE clients.
		}
	}
}

// Close signals that no more events will be published for the given task.
// All subscriber channels are closed and the topic is released.
func (b *EventBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	delete(b.topics, taskID)
}
