// Package events fans controller state snapshots out to listeners, chiefly
// the SSE endpoint. Publishing never blocks: a listener that falls behind
// misses snapshots instead of stalling the controller.
package events

import (
	"sync"

	"github.com/midideck/midideck-go/internal/models"
)

// subscriberBuffer is sized for a browser tab that hiccups, not one that
// stopped reading. Each snapshot is complete, so missed ones are harmless.
const subscriberBuffer = 8

// Bus is the snapshot fan-out. The zero value is not usable; call NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan models.State
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan models.State)}
}

// Subscribe registers a listener under id and returns its snapshot channel.
// The caller must Unsubscribe with the same id when done.
func (b *Bus) Subscribe(id string) <-chan models.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan models.State, subscriberBuffer)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a listener and closes its channel. Unknown ids are
// ignored, so a double unsubscribe is safe.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the snapshot to every listener whose buffer has room.
// Only a read lock is held: channel sends are safe concurrently, and
// Subscribe/Unsubscribe are the only writers of the map.
func (b *Bus) Publish(state models.State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// SubscriberCount reports how many listeners are attached. Surfaced in the
// info endpoint.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
