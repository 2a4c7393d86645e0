// Package events fans chain events out to connected SSE clients.
package events

import (
	"encoding/json"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/logging"
)

// Event is one SSE payload
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// NewEvent builds an event, marshalling data. Marshal failures produce an
// event with null data rather than losing the event.
func NewEvent(eventType string, data interface{}) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Event{Type: eventType, Data: raw, At: time.Now().UTC()}
}

type client struct {
	id string
	ch chan Event
}

// Broadcaster is a single-goroutine fan-out hub. The hub goroutine owns the
// client map; registration, removal and broadcast all flow through channels
// so no lock is shared with callers. Events are fire-and-forget: a client
// that cannot keep up misses events, there is no replay.
type Broadcaster struct {
	register   chan client
	unregister chan string
	events     chan Event
	done       chan struct{}
	logger     *logging.Logger
}

// NewBroadcaster creates a broadcaster; Run must be started for it to move
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		register:   make(chan client),
		unregister: make(chan string),
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		logger:     logging.GetGlobalLogger().WithField("component", "events"),
	}
}

// Run owns the client map until Stop is called
func (b *Broadcaster) Run() {
	clients := make(map[string]chan Event)

	for {
		select {
		case <-b.done:
			for _, ch := range clients {
				close(ch)
			}
			return

		case c := <-b.register:
			clients[c.id] = c.ch
			b.logger.WithField("client", c.id).WithField("clients", len(clients)).
				Debug("listener added")

		case id := <-b.unregister:
			if ch, ok := clients[id]; ok {
				delete(clients, id)
				close(ch)
				b.logger.WithField("client", id).WithField("clients", len(clients)).
					Debug("listener removed")
			}

		case event := <-b.events:
			for id, ch := range clients {
				select {
				case ch <- event:
				default:
					// Slow client; it keeps its subscription but drops
					// this event. The write loop notices dead clients.
					b.logger.WithField("client", id).Debug("dropping event for slow client")
				}
			}
		}
	}
}

// Stop shuts the hub down and closes every client channel
func (b *Broadcaster) Stop() {
	close(b.done)
}

// AddListener registers a client channel under id. The channel is closed by
// the hub on removal or shutdown.
func (b *Broadcaster) AddListener(id string, ch chan Event) {
	select {
	case b.register <- client{id: id, ch: ch}:
	case <-b.done:
		close(ch)
	}
}

// RemoveListener drops a client; unknown ids are ignored
func (b *Broadcaster) RemoveListener(id string) {
	select {
	case b.unregister <- id:
	case <-b.done:
	}
}

// Broadcast queues an event for every connected client
func (b *Broadcaster) Broadcast(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}
