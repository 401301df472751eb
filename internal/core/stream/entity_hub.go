package stream

import (
	"context"
	"sync"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/metric"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// EntityHub keeps the latest state per entity and fans updates out to observers
// of a single entity or of all of them.
type EntityHub struct {
	mu       sync.RWMutex
	latest   map[string]domain.EntityState
	entities map[string]*entityStream
	all      *eventstream.EventStream
	metrics  *metric.Metrics
	logger   *zap.Logger
}

type entityStream struct {
	es          *eventstream.EventStream
	subscribers int
}

func NewEntityHub(metrics *metric.Metrics, logger *zap.Logger) *EntityHub {
	return &EntityHub{
		latest:   map[string]domain.EntityState{},
		entities: map[string]*entityStream{},
		all:      &eventstream.EventStream{},
		metrics:  metrics,
		logger:   logger.With(zap.String("stream", "entities")),
	}
}

// Publish records state as the latest for its entity and notifies observers.
// Callers publish from a single goroutine, which keeps per-entity order.
func (h *EntityHub) Publish(state domain.EntityState) {
	h.mu.Lock()
	h.latest[state.EntityID()] = state
	stream := h.entities[state.EntityID()]
	h.mu.Unlock()

	if stream != nil {
		stream.es.Publish(state)
	}
	h.all.Publish(state)
}

func (h *EntityHub) Latest(entityId string) (domain.EntityState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.latest[entityId]
	return state, ok
}

func (h *EntityHub) Snapshot() []domain.EntityState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	states := make([]domain.EntityState, 0, len(h.latest))
	for _, state := range h.latest {
		states = append(states, state)
	}
	return states
}

// Observe streams every future state of entityId. Cached states are not replayed;
// a refresh request repopulates them. When expected is set, states of another
// domain are dropped and reported as a type mismatch. The channel closes when ctx
// is done.
func (h *EntityHub) Observe(ctx context.Context, entityId string, expected domain.EntityDomain) <-chan domain.EntityState {
	return h.observe(ctx, entityId, expected, false)
}

// ObserveWithLatest is Observe preceded by the latest known state, if any.
func (h *EntityHub) ObserveWithLatest(ctx context.Context, entityId string, expected domain.EntityDomain) <-chan domain.EntityState {
	return h.observe(ctx, entityId, expected, true)
}

func (h *EntityHub) observe(ctx context.Context, entityId string, expected domain.EntityDomain, replay bool) <-chan domain.EntityState {
	sub := newSubscriber[domain.EntityState](DEFAULT_SUBSCRIBER_BUFFER)
	offer := func(state domain.EntityState) {
		if h.accepts(state, expected) {
			sub.offer(state)
		}
	}

	h.mu.Lock()
	if state, ok := h.latest[entityId]; ok && replay {
		offer(state)
	}
	stream := h.entities[entityId]
	if stream == nil {
		stream = &entityStream{es: &eventstream.EventStream{}}
		h.entities[entityId] = stream
	}
	stream.subscribers++
	handle := stream.es.Subscribe(func(evt any) {
		if state, ok := evt.(domain.EntityState); ok {
			offer(state)
		}
	})
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.release(entityId, stream, handle)
		sub.close()
	}()
	return sub.ch
}

// ObserveAllFunc calls fn for every update of every entity, without replay.
func (h *EntityHub) ObserveAllFunc(fn func(domain.EntityState)) (unsubscribe func()) {
	handle := h.all.Subscribe(func(evt any) {
		if state, ok := evt.(domain.EntityState); ok {
			guard(h.logger, func() { fn(state) })
		}
	})
	return func() {
		h.all.Unsubscribe(handle)
	}
}

// Observers returns how many observers are attached to entityId.
func (h *EntityHub) Observers(entityId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if stream, ok := h.entities[entityId]; ok {
		return stream.subscribers
	}
	return 0
}

func (h *EntityHub) release(entityId string, stream *entityStream, handle *eventstream.Subscription) {
	stream.es.Unsubscribe(handle)
	h.mu.Lock()
	defer h.mu.Unlock()
	stream.subscribers--
	if stream.subscribers <= 0 && h.entities[entityId] == stream {
		delete(h.entities, entityId)
	}
}

func (h *EntityHub) accepts(state domain.EntityState, expected domain.EntityDomain) bool {
	if expected == "" || state.Domain() == expected {
		return true
	}
	err := &domain.TypeMismatchError{EntityId: state.EntityID(), Expected: expected, Actual: state.Domain()}
	h.logger.Warn("stream: type mismatch", zap.Error(err))
	if h.metrics != nil {
		h.metrics.TypeMismatches.Inc()
	}
	return false
}
