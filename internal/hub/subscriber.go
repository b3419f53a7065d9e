package hub

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber send queue depth. A subscriber that
// falls this many messages behind is evicted rather than allowed to stall
// the broadcast.
const subscriberBuffer = 16

// Subscriber is one registered consumer of hub broadcasts. The transport
// layer drains Updates; the hub only ever performs non-blocking sends into
// it, so a stuck transport can never block a broadcast.
type Subscriber struct {
	id     string
	joined time.Time

	mu       sync.Mutex
	send     chan Envelope
	closed   bool
	lastSeen time.Time
	prefs    map[string]any
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Updates returns the channel of envelopes queued for this subscriber. The
// channel is closed when the subscriber is deregistered or evicted.
func (s *Subscriber) Updates() <-chan Envelope { return s.send }

// LastSeen reports when the subscriber last showed signs of life.
func (s *Subscriber) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Touch refreshes the liveness timestamp. The transport calls this on pong
// frames and inbound messages.
func (s *Subscriber) Touch() {
	s.mu.Lock()
	s.lastSeen = clock.Now().UTC()
	s.mu.Unlock()
}

// Preferences returns a copy of the stored subscription preferences.
func (s *Subscriber) Preferences() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return nil
	}
	prefs := make(map[string]any, len(s.prefs))
	for k, v := range s.prefs {
		prefs[k] = v
	}
	return prefs
}

func (s *Subscriber) setPreferences(prefs map[string]any) {
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
}

// offer queues an envelope without blocking. It reports false when the
// subscriber is closed or its queue is full; the caller decides whether
// that means eviction.
func (s *Subscriber) offer(env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
