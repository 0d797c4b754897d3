// Package eventbus fans out freshly-ingested mesh events to WebSocket
// subscribers, giving clients a push alternative to the /api/poll loop.
// It implements internal/ingest.EventPublisher.
package eventbus

import (
	"sync"
	"time"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

// EventType classifies a Bus event for subscribers.
type EventType string

const (
	EventNode       EventType = "node"
	EventMessage    EventType = "message"
	EventPosition   EventType = "position"
	EventTelemetry  EventType = "telemetry"
	EventTraceroute EventType = "traceroute"
	EventNeighbor   EventType = "neighbor"
)

// Event is the JSON envelope broadcast to every subscriber.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type subscriber struct {
	ch chan Event
}

// subscriberBuffer bounds how many undelivered events a slow WebSocket
// client can queue; once full, further events to that client are skipped
// (the client stays subscribed) rather than stalling the broadcast.
const subscriberBuffer = 64

// Bus fans events out to all registered subscribers, using buffered
// channels instead of holding *websocket.Conn directly so it stays
// transport-agnostic and testable without a real socket.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// New constructs a ready Bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new client. The returned unsubscribe func must be
// called exactly once when the client disconnects; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// publish delivers e to every subscriber, skipping any whose buffer is full
// rather than blocking the ingest hot path.
func (b *Bus) publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Len reports the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) PublishNode(n store.Node) { b.publish(Event{Type: EventNode, Data: n}) }

func (b *Bus) PublishMessage(m store.Message) { b.publish(Event{Type: EventMessage, Data: m}) }

func (b *Bus) PublishPosition(nodeID string, p store.PositionHistoryPoint) {
	b.publish(Event{Type: EventPosition, Data: struct {
		NodeID string                     `json:"nodeId"`
		Point  store.PositionHistoryPoint `json:"point"`
	}{nodeID, p}})
}

func (b *Bus) PublishTelemetry(s store.TelemetrySample) {
	b.publish(Event{Type: EventTelemetry, Data: s})
}

func (b *Bus) PublishTraceroute(tr store.Traceroute) {
	b.publish(Event{Type: EventTraceroute, Data: tr})
}

func (b *Bus) PublishNeighbor(nodeNum uint32, edges []store.NeighborEdge) {
	b.publish(Event{Type: EventNeighbor, Data: struct {
		NodeNum uint32               `json:"nodeNum"`
		Edges   []store.NeighborEdge `json:"edges"`
	}{nodeNum, edges}})
}
