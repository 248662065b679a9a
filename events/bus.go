package events

import (
	"fmt"
	"sync"
)

// Topic identifies a session lifecycle transition
type Topic int

const (
	TopicLogin Topic = iota + 1
	TopicLogout
	TopicTokenRefreshed
)

func (t Topic) String() string {
	switch t {
	case TopicLogin:
		return "login"
	case TopicLogout:
		return "logout"
	case TopicTokenRefreshed:
		return "tokenRefreshed"
	default:
		return fmt.Sprintf("Topic(%d)", int(t))
	}
}

// Listener is called with no payload; listeners re-read session state themselves.
type Listener func()

// Subscription identifies one registered listener. It is the handle passed to Unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

// Topic returns the topic the subscription listens on
func (s Subscription) Topic() Topic {
	return s.topic
}

type entry struct {
	id       uint64
	listener Listener
}

// Bus is a synchronous, in-process publish/subscribe hub for session events.
// Listeners run on the publishing goroutine, in subscription order.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[Topic][]entry
	active    map[uint64]struct{}
}

func NewBus() *Bus {
	return &Bus{
		listeners: make(map[Topic][]entry),
		active:    make(map[uint64]struct{}),
	}
}

// Subscribe registers fn for topic and returns the handle used to remove it
func (b *Bus) Subscribe(topic Topic, fn Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[topic] = append(b.listeners[topic], entry{id: id, listener: fn})
	b.active[id] = struct{}{}
	return Subscription{topic: topic, id: id}
}

// Unsubscribe removes the listener behind sub. Unknown or already-removed handles are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.active[sub.id]; !ok {
		return
	}
	delete(b.active, sub.id)

	entries := b.listeners[sub.topic]
	for i, e := range entries {
		if e.id == sub.id {
			// Copy so an in-progress Publish keeps iterating its own snapshot
			updated := make([]entry, 0, len(entries)-1)
			updated = append(updated, entries[:i]...)
			updated = append(updated, entries[i+1:]...)
			b.listeners[sub.topic] = updated
			break
		}
	}
	if len(b.listeners[sub.topic]) == 0 {
		delete(b.listeners, sub.topic)
	}
}

// Publish calls every listener subscribed to topic when the dispatch starts.
// A listener removed mid-dispatch is skipped if it has not run yet; one added mid-dispatch waits for the next Publish.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	snapshot := b.listeners[topic]
	b.mu.Unlock()

	for _, e := range snapshot {
		if !b.isActive(e.id) {
			continue
		}
		e.listener()
	}
}

// Count returns the number of listeners subscribed to topic
func (b *Bus) Count(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[topic])
}

func (b *Bus) isActive(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[id]
	return ok
}
