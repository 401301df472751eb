package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/metric"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		require.True(t, ok, "channel closed")
		return value
	case <-time.After(time.Second):
		t.Fatal("nothing received")
	}
	var zero T
	return zero
}

func assertNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case value := <-ch:
		t.Fatalf("unexpected value %v", value)
	case <-time.After(50 * time.Millisecond):
	}
}

func light(id string, on bool) domain.LightEntityState {
	return domain.LightEntityState{EntityStateMixIn: domain.EntityStateMixIn{Id: id}, On: on}
}

func TestReplayStream(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New[domain.ConnectionState]("connection", true, zap.NewNop())
	s.Publish(domain.CONNECTION_STATE_CONNECTING)
	s.Publish(domain.CONNECTION_STATE_CONNECTED)

	ch := s.Subscribe(ctx)
	assert.Equal(t, domain.CONNECTION_STATE_CONNECTED, receive(t, ch))

	s.Publish(domain.CONNECTION_STATE_DISCONNECTED)
	assert.Equal(t, domain.CONNECTION_STATE_DISCONNECTED, receive(t, ch))

	latest, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, domain.CONNECTION_STATE_DISCONNECTED, latest)
}

func TestNonReplayStream(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New[domain.AuthResult]("auth", false, zap.NewNop())
	s.Publish(domain.AuthResult{Code: domain.AUTH_RESULT_FAILURE})

	ch := s.Subscribe(ctx)
	assertNothing(t, ch)

	s.Publish(domain.AuthResult{Code: domain.AUTH_RESULT_SUCCESS})
	assert.True(t, receive(t, ch).Success())
}

func TestSubscriptionEndsWithContext(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())

	s := New[domain.SessionState]("session", true, zap.NewNop())
	ch := s.Subscribe(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// publishing after teardown must be harmless
	s.Publish(domain.SESSION_STATE_AUTHENTICATED)
}

func TestSlowSubscriberKeepsMostRecent(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New[int]("numbers", false, zap.NewNop())
	ch := s.Subscribe(ctx)
	for i := 1; i <= DEFAULT_SUBSCRIBER_BUFFER*4; i++ {
		s.Publish(i)
	}

	last := 0
	for len(ch) > 0 {
		value := <-ch
		assert.Greater(t, value, last)
		last = value
	}
	assert.Equal(t, DEFAULT_SUBSCRIBER_BUFFER*4, last)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {

	s := New[int]("numbers", false, zap.NewNop())

	var received atomic.Int32
	unsubPanic := s.SubscribeFunc(func(int) { panic("boom") })
	unsub := s.SubscribeFunc(func(int) { received.Add(1) })

	s.Publish(1)
	s.Publish(2)
	assert.EqualValues(t, 2, received.Load())

	unsub()
	unsubPanic()
	s.Publish(3)
	assert.EqualValues(t, 2, received.Load())
}

func TestEntityHubReplaysLatestPerEntity(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewEntityHub(metric.NewTestMetrics(), zap.NewNop())
	hub.Publish(light("light.kitchen", false))
	hub.Publish(light("light.kitchen", true))
	hub.Publish(light("light.hall", false))

	ch := hub.ObserveWithLatest(ctx, "light.kitchen", domain.DOMAIN_LIGHT)
	first := receive(t, ch).(domain.LightEntityState)
	assert.True(t, first.On)

	hub.Publish(light("light.hall", true))
	assertNothing(t, ch)

	hub.Publish(light("light.kitchen", false))
	assert.False(t, receive(t, ch).(domain.LightEntityState).On)
}

func TestEntityHubObserveDoesNotReplay(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewEntityHub(metric.NewTestMetrics(), zap.NewNop())
	hub.Publish(light("light.kitchen", true))

	ch := hub.Observe(ctx, "light.kitchen", domain.DOMAIN_LIGHT)
	assertNothing(t, ch)

	hub.Publish(light("light.kitchen", false))
	assert.False(t, receive(t, ch).(domain.LightEntityState).On)

	latest, ok := hub.Latest("light.kitchen")
	assert.True(t, ok)
	assert.False(t, latest.(domain.LightEntityState).On)
}

func TestEntityHubObserveBeforeFirstState(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewEntityHub(metric.NewTestMetrics(), zap.NewNop())
	ch := hub.Observe(ctx, "switch.fan", "")
	assertNothing(t, ch)

	hub.Publish(domain.SwitchEntityState{EntityStateMixIn: domain.EntityStateMixIn{Id: "switch.fan"}, On: true})
	assert.Equal(t, "switch.fan", receive(t, ch).EntityID())
}

func TestEntityHubTypeMismatch(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := metric.NewTestMetrics()
	hub := NewEntityHub(metrics, zap.NewNop())
	ch := hub.Observe(ctx, "cover.garage", domain.DOMAIN_COVER)

	hub.Publish(light("cover.garage", true))
	assertNothing(t, ch)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TypeMismatches))

	hub.Publish(domain.CoverEntityState{EntityStateMixIn: domain.EntityStateMixIn{Id: "cover.garage"}, State: domain.COVER_STATE_OPEN})
	assert.Equal(t, domain.COVER_STATE_OPEN, receive(t, ch).(domain.CoverEntityState).State)
}

func TestEntityHubReleasesObservers(t *testing.T) {

	hub := NewEntityHub(metric.NewTestMetrics(), zap.NewNop())

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	hub.Observe(ctx1, "light.kitchen", "")
	hub.Observe(ctx2, "light.kitchen", "")
	assert.Equal(t, 2, hub.Observers("light.kitchen"))

	cancel1()
	assert.Eventually(t, func() bool { return hub.Observers("light.kitchen") == 1 }, time.Second, 10*time.Millisecond)
	cancel2()
	assert.Eventually(t, func() bool { return hub.Observers("light.kitchen") == 0 }, time.Second, 10*time.Millisecond)

	// latest state survives observers going away
	hub.Publish(light("light.kitchen", true))
	_, ok := hub.Latest("light.kitchen")
	assert.True(t, ok)
}

func TestEntityHubObserveAll(t *testing.T) {

	hub := NewEntityHub(metric.NewTestMetrics(), zap.NewNop())

	var ids []string
	unsub := hub.ObserveAllFunc(func(state domain.EntityState) {
		ids = append(ids, state.EntityID())
	})
	hub.Publish(light("light.a", true))
	hub.Publish(light("light.b", true))
	unsub()
	hub.Publish(light("light.c", true))

	assert.Equal(t, []string{"light.a", "light.b"}, ids)
	assert.Len(t, hub.Snapshot(), 3)
}
