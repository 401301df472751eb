package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const DEFAULT_SUBSCRIBER_BUFFER = 16

// Stream fans values out to any number of subscribers. A replaying stream hands
// its latest value to every new subscriber before live values.
type Stream[T any] struct {
	name   string
	replay bool
	es     *eventstream.EventStream
	mu     sync.Mutex
	latest T
	has    bool
	logger *zap.Logger
}

func New[T any](name string, replay bool, logger *zap.Logger) *Stream[T] {
	return &Stream[T]{
		name:   name,
		replay: replay,
		es:     &eventstream.EventStream{},
		logger: logger.With(zap.String("stream", name)),
	}
}

func (s *Stream[T]) Publish(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = value
	s.has = true
	s.es.Publish(value)
}

func (s *Stream[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Subscribe returns a channel of values that is closed once ctx is done. Slow
// readers only lose intermediate values, never the most recent one.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	sub := newSubscriber[T](DEFAULT_SUBSCRIBER_BUFFER)

	s.mu.Lock()
	if s.replay && s.has {
		sub.offer(s.latest)
	}
	handle := s.es.Subscribe(func(evt any) {
		if value, ok := evt.(T); ok {
			sub.offer(value)
		}
	})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.es.Unsubscribe(handle)
		sub.close()
	}()
	return sub.ch
}

// SubscribeFunc calls fn synchronously for every published value, without replay.
// A panicking fn is logged and does not affect other subscribers. fn runs while the
// stream is locked and must not call back into it.
func (s *Stream[T]) SubscribeFunc(fn func(T)) (unsubscribe func()) {
	handle := s.es.Subscribe(func(evt any) {
		if value, ok := evt.(T); ok {
			guard(s.logger, func() { fn(value) })
		}
	})
	return func() {
		s.es.Unsubscribe(handle)
	}
}

func guard(logger *zap.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream: subscriber panic", zap.String("reason", fmt.Sprintf("%v", r)))
		}
	}()
	fn()
}

type subscriber[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped uint64
}

func newSubscriber[T any](size int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, size)}
}

// offer never blocks. When the buffer is full the oldest pending value is dropped.
func (s *subscriber[T]) offer(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- value:
			return true
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
