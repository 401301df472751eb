package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frameSink struct {
	frames chan []byte
}

func (p *frameSink) Receive(ctx actor.Context) {
	if msg, ok := ctx.Message().(domain.InboundFrame); ok {
		p.frames <- msg.Data
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (r *stateRecorder) record(state domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) get() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionState(nil), r.states...)
}

type transportFixture struct {
	system    *actor.ActorSystem
	server    *panelsense_ws.TestServer
	states    *stream.Stream[domain.ConnectionState]
	recorder  *stateRecorder
	frames    chan []byte
	transport *actor.PID
}

func newTransportFixture(t *testing.T) *transportFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)

	f := &transportFixture{
		system:   as,
		server:   panelsense_ws.NewTestServer(),
		states:   stream.New[domain.ConnectionState]("connection", true, logger),
		recorder: &stateRecorder{},
		frames:   make(chan []byte, 16),
	}
	f.states.SubscribeFunc(f.recorder.record)

	router := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &frameSink{frames: f.frames}
	}))
	f.transport = as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTransportActor(f.server.Dialer(), router, f.states, metric.NewTestMetrics(), time.Second, logger)
	}))
	t.Cleanup(as.Shutdown)
	return f
}

func (f *transportFixture) connect(t *testing.T) domain.ConnectResponse {
	res, err := f.system.Root.RequestFuture(f.transport, domain.ConnectRequest{Host: "panel.test", Port: 8099}, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.ConnectResponse)
}

func (f *transportFixture) send(t *testing.T, frame []byte) domain.SendFrameResponse {
	res, err := f.system.Root.RequestFuture(f.transport, domain.SendFrameRequest{Frame: frame}, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.SendFrameResponse)
}

func TestTransportConnectAndForwardFrames(t *testing.T) {

	require := require.New(t)

	f := newTransportFixture(t)
	require.False(f.connect(t).HasResponseError())

	latest, _ := f.states.Latest()
	require.Equal(domain.CONNECTION_STATE_CONNECTED, latest)

	require.NoError(f.server.PushRaw([]byte("first")))
	require.NoError(f.server.PushRaw([]byte("second")))
	require.Equal("first", string(<-f.frames))
	require.Equal("second", string(<-f.frames))

	resp := f.send(t, []byte(`{"type":"REQUEST_ENTITIES_STATES"}`))
	require.False(resp.HasResponseError())
	require.Len(f.server.ReceivedOfType(panelsense_ws.MESSAGE_TYPE_REQUEST_ENTITIES_STATES), 1)
}

func TestTransportSendWhileDisconnected(t *testing.T) {

	f := newTransportFixture(t)
	resp := f.send(t, []byte(`{"type":"REQUEST_ENTITIES_STATES"}`))

	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrNotConnected)
	assert.Empty(t, f.server.Received())
}

func TestTransportDialFailure(t *testing.T) {

	assert := assert.New(t)

	f := newTransportFixture(t)
	f.server.FailDials(errors.New("connection refused"))

	resp := f.connect(t)
	var connErr *domain.ConnectionError
	assert.ErrorAs(resp.GetResponseError(), &connErr)
	assert.Equal("panel.test:8099", connErr.Address)

	assert.Eventually(func() bool {
		states := f.recorder.get()
		return len(states) > 0 && states[len(states)-1] == domain.CONNECTION_STATE_FAILED
	}, time.Second, 10*time.Millisecond)
}

func TestTransportConnectionLoss(t *testing.T) {

	f := newTransportFixture(t)
	require.False(t, f.connect(t).HasResponseError())

	f.server.DropConnection()

	assert.Eventually(t, func() bool {
		latest, _ := f.states.Latest()
		return latest == domain.CONNECTION_STATE_DISCONNECTED
	}, time.Second, 10*time.Millisecond)

	// no retry on its own
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.server.Dials())
}

func TestTransportReconnectTearsDownPrevious(t *testing.T) {

	f := newTransportFixture(t)
	require.False(t, f.connect(t).HasResponseError())
	require.False(t, f.connect(t).HasResponseError())

	assert.Equal(t, 2, f.server.Dials())
	assert.Eventually(t, func() bool {
		states := f.recorder.get()
		expected := []domain.ConnectionState{
			domain.CONNECTION_STATE_DISCONNECTED,
			domain.CONNECTION_STATE_CONNECTING, domain.CONNECTION_STATE_CONNECTED,
			domain.CONNECTION_STATE_DISCONNECTED, domain.CONNECTION_STATE_CONNECTING, domain.CONNECTION_STATE_CONNECTED,
		}
		return assert.ObjectsAreEqual(expected, states)
	}, time.Second, 10*time.Millisecond)
}

func TestTransportDisconnect(t *testing.T) {

	f := newTransportFixture(t)
	require.False(t, f.connect(t).HasResponseError())

	res, err := f.system.Root.RequestFuture(f.transport, domain.DisconnectRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.DisconnectResponse).HasResponseError())

	latest, _ := f.states.Latest()
	assert.Equal(t, domain.CONNECTION_STATE_DISCONNECTED, latest)
	assert.False(t, f.server.Connected())
}
