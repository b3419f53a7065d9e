package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/forecast"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// feedBuffer bounds the export feed. When sinks fall behind, the oldest
// bundle is dropped; delivery is at-least-periodic, not exactly-once.
const feedBuffer = 64

// Cycle trigger labels.
const (
	TriggerScheduled = "scheduled"
	TriggerForced    = "forced"
)

// Producer runs one forecast cycle on demand.
type Producer interface {
	Produce(ctx context.Context) (forecast.Result, error)
}

// Hub owns the poll loop and the subscriber registry. Cycles run one at a
// time on the Run goroutine; registry mutations and broadcast iteration are
// mutually exclusive, so every subscriber active at broadcast start sees the
// same bundle.
type Hub struct {
	producer Producer
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	latest      *domain.ForecastBundle
	fingerprint domain.Fingerprint
	cycles      int
	lastCycle   time.Time

	forceCh chan struct{}
	feed    chan domain.ForecastBundle
}

// Stats is a point-in-time snapshot of hub state for the status endpoint.
type Stats struct {
	Subscribers int        `json:"subscribers"`
	Cycles      int        `json:"cycles"`
	LastCycle   *time.Time `json:"lastCycle,omitempty"`
	HasData     bool       `json:"hasData"`
}

// New creates a Hub polling the producer at the given interval.
func New(producer Producer, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		producer:    producer,
		interval:    interval,
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[string]*Subscriber),
		forceCh:     make(chan struct{}, 1),
		feed:        make(chan domain.ForecastBundle, feedBuffer),
	}
}

// Run executes the poll loop until the context is cancelled. One cycle runs
// immediately so subscribers and readiness never wait a full interval.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("broadcast hub started", "interval", h.interval)

	h.runCycle(ctx, TriggerScheduled)

	ticker := clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("broadcast hub stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			h.runCycle(ctx, TriggerScheduled)
		case <-h.forceCh:
			h.runCycle(ctx, TriggerForced)
		}
	}
}

// ForceRefresh queues a forced cycle. Requests collapse while one is already
// pending.
func (h *Hub) ForceRefresh() {
	select {
	case h.forceCh <- struct{}{}:
	default:
	}
}

// Register adds a subscriber and immediately queues its initial_data
// envelope, the latest bundle or a NoDataNotice when no cycle has completed.
func (h *Hub) Register() *Subscriber {
	now := clock.Now().UTC()
	sub := &Subscriber{
		id:       uuid.NewString(),
		joined:   now,
		lastSeen: now,
		send:     make(chan Envelope, subscriberBuffer),
	}

	env := Envelope{Type: TypeInitialData, Timestamp: now}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	count := len(h.subscribers)
	if h.latest != nil {
		env.Data = *h.latest
	} else {
		env.Data = NoDataNotice{
			Status:  "no_data",
			Message: "first forecast cycle has not completed yet",
		}
	}
	h.mu.Unlock()

	h.metrics.Subscribers.Set(float64(count))
	sub.offer(env)
	h.logger.Debug("subscriber registered", "id", sub.id, "total", count)
	return sub
}

// Deregister removes a subscriber and closes its update channel. Safe to
// call more than once.
func (h *Hub) Deregister(sub *Subscriber) {
	if h.remove(sub) {
		h.logger.Debug("subscriber deregistered", "id", sub.id)
	}
	sub.close()
}

// HandleClientMessage applies one inbound message from a subscriber's
// transport. Unknown types are logged and dropped.
func (h *Hub) HandleClientMessage(sub *Subscriber, msg ClientMessage) {
	sub.Touch()

	switch msg.Type {
	case ClientPing:
		if !sub.offer(Envelope{Type: TypePong, Timestamp: clock.Now().UTC()}) {
			h.evict(sub)
		}
	case ClientRequestUpdate:
		h.ForceRefresh()
	case ClientSubscribe:
		sub.setPreferences(msg.Preferences)
	default:
		h.logger.Warn("unknown client message type", "type", msg.Type, "subscriber", sub.id)
	}
}

// Latest returns the most recent bundle, if any cycle has completed.
func (h *Hub) Latest() (domain.ForecastBundle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return domain.ForecastBundle{}, false
	}
	return *h.latest, true
}

// CurrentStats snapshots the hub state.
func (h *Hub) CurrentStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := Stats{
		Subscribers: len(h.subscribers),
		Cycles:      h.cycles,
		HasData:     h.latest != nil,
	}
	if !h.lastCycle.IsZero() {
		t := h.lastCycle
		stats.LastCycle = &t
	}
	return stats
}

// Feed exposes completed bundles for export sinks.
func (h *Hub) Feed() <-chan domain.ForecastBundle { return h.feed }

func (h *Hub) runCycle(ctx context.Context, trigger string) {
	result, err := h.producer.Produce(ctx)
	if err != nil {
		// Produce fails only on context cancellation; the loop exits on its
		// next pass.
		return
	}
	h.metrics.CyclesTotal.WithLabelValues(trigger).Inc()

	h.mu.Lock()
	changed := h.latest == nil || result.Fingerprint != h.fingerprint
	h.latest = &result.Bundle
	h.fingerprint = result.Fingerprint
	h.cycles++
	h.lastCycle = clock.Now().UTC()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	h.offerFeed(result.Bundle)
	h.broadcast(h.cycleEnvelope(trigger, changed, result.Bundle, len(subs)), subs)
}

// cycleEnvelope picks the broadcast frame for a completed cycle. Forced
// cycles always carry the bundle; scheduled cycles degrade to a heartbeat
// when the fingerprint is unchanged.
func (h *Hub) cycleEnvelope(trigger string, changed bool, bundle domain.ForecastBundle, subscriberCount int) Envelope {
	now := clock.Now().UTC()
	switch {
	case trigger == TriggerForced:
		return Envelope{Type: TypeForcedUpdate, Data: bundle, Changed: &changed, Timestamp: now}
	case changed:
		return Envelope{Type: TypeDataUpdate, Data: bundle, Changed: &changed, Timestamp: now}
	default:
		return Envelope{Type: TypeHeartbeat, Data: HeartbeatStatus{Subscribers: subscriberCount}, Timestamp: now}
	}
}

func (h *Hub) broadcast(env Envelope, subs []*Subscriber) {
	h.metrics.Broadcasts.WithLabelValues(string(env.Type)).Inc()
	for _, sub := range subs {
		if !sub.offer(env) {
			h.evict(sub)
		}
	}
}

// evict removes a subscriber that can no longer accept messages. Only the
// failing subscriber is affected; the broadcast continues for the rest.
func (h *Hub) evict(sub *Subscriber) {
	if h.remove(sub) {
		h.metrics.SubscriberEvictions.Inc()
		h.logger.Warn("subscriber evicted", "id", sub.id, "reason", "send queue full")
	}
	sub.close()
}

func (h *Hub) remove(sub *Subscriber) bool {
	h.mu.Lock()
	_, ok := h.subscribers[sub.id]
	if ok {
		delete(h.subscribers, sub.id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		h.metrics.Subscribers.Set(float64(count))
	}
	return ok
}

// offerFeed enqueues a bundle for the export runner, dropping the oldest
// entry when the buffer is full. Only the Run goroutine sends here.
func (h *Hub) offerFeed(bundle domain.ForecastBundle) {
	for {
		select {
		case h.feed <- bundle:
			return
		default:
		}
		select {
		case <-h.feed:
		default:
		}
	}
}
