package events

import (
	"sync"
	"time"

	"TradeArena/internal/observability"
)

// Type identifies a kind of engine event.
type Type string

const (
	TypeLog                Type = "log"
	TypeLeaderboardUpdate  Type = "leaderboardUpdate"
	TypeTournamentComplete Type = "tournamentComplete"
)

// Event is one push notification from the engine.
type Event struct {
	Type         Type      `json:"type"`
	TournamentID string    `json:"tournament_id"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// Subscription is one registered listener. Receive from C; call Unsubscribe
// when done or the subscriber leaks.
type Subscription struct {
	C chan Event

	id      uint64
	filter  string
	channel *Channel
}

// Unsubscribe removes the subscription and closes C.
func (s *Subscription) Unsubscribe() {
	s.channel.remove(s.id)
}

// Channel fans engine events out to subscribers. Publishes never block:
// a subscriber whose buffer is full misses the event.
type Channel struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*Subscription
	bufSize int
	metrics *observability.Metrics
}

// NewChannel creates an event channel. Metrics may be nil.
func NewChannel(bufSize int, metrics *observability.Metrics) *Channel {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Channel{
		subs:    make(map[uint64]*Subscription),
		bufSize: bufSize,
		metrics: metrics,
	}
}

// Subscribe registers a listener. An empty tournamentID receives every
// event; otherwise only events for that tournament are delivered.
func (c *Channel) Subscribe(tournamentID string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription{
		C:       make(chan Event, c.bufSize),
		id:      c.nextID,
		filter:  tournamentID,
		channel: c,
	}
	c.subs[sub.id] = sub

	if c.metrics != nil {
		c.metrics.Subscribers.Set(float64(len(c.subs)))
	}
	return sub
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)
	close(sub.C)

	if c.metrics != nil {
		c.metrics.Subscribers.Set(float64(len(c.subs)))
	}
}

// Publish delivers the event to every matching subscriber without blocking.
func (c *Channel) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.metrics != nil {
		c.metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	}

	for _, sub := range c.subs {
		if sub.filter != "" && sub.filter != evt.TournamentID {
			continue
		}
		select {
		case sub.C <- evt:
		default:
			// Slow subscriber: drop rather than stall the loop.
			if c.metrics != nil {
				c.metrics.EventsDropped.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (c *Channel) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
