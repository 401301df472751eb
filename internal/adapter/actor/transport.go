package actor

import (
	"context"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// TransportActor owns the single physical connection to the server. It publishes
// every connection state change and forwards inbound frames, in order, to the
// router. It never reconnects on its own.
type TransportActor struct {
	behavior       actor.Behavior
	stash          *actorutil.Stash
	dialer         panelsense_ws.Dialer
	router         *actor.PID
	states         *stream.Stream[domain.ConnectionState]
	metrics        *metric.Metrics
	connectTimeout time.Duration
	logger         *zap.Logger

	conn       panelsense_ws.Conn
	generation uint64
	address    string
	pending    *actor.PID
}

type dialResult struct {
	generation uint64
	conn       panelsense_ws.Conn
	err        error
}

type connectionLost struct {
	generation uint64
	err        error
}

func NewTransportActor(dialer panelsense_ws.Dialer, router *actor.PID, states *stream.Stream[domain.ConnectionState],
	metrics *metric.Metrics, connectTimeout time.Duration, logger *zap.Logger) *TransportActor {
	act := &TransportActor{
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		dialer:         dialer,
		router:         router,
		states:         states,
		metrics:        metrics,
		connectTimeout: connectTimeout,
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_TRANSPORT, logger),
		// a restarted instance must not match readers of its predecessor
		generation: uint64(time.Now().UnixNano()),
	}
	act.behavior.Become(act.DisconnectedReceive)
	return act
}

func (state *TransportActor) Receive(context actor.Context) {
	switch context.Message().(type) {
	case *actor.Stopping, *actor.Restarting:
		state.closeConnection()
	}
	state.behavior.Receive(context)
}

func (state *TransportActor) DisconnectedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("transport@disconnected started")
		state.publish(domain.CONNECTION_STATE_DISCONNECTED)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "disconnected")
	case domain.ConnectRequest:
		state.logger.Debug("transport@disconnected ConnectRequest", zap.String("host", msg.Host), zap.Uint("port", msg.Port))
		state.connect(ctx, msg)
	case domain.SendFrameRequest:
		state.logger.Debug("transport@disconnected SendFrameRequest rejected")
		actorutil.ForRequest(msg).Respond(ctx, domain.SendFrameResponse{
			ActorResponseMixIn: domain.ErrorResponse(domain.ErrNotConnected),
		})
	case domain.DisconnectRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.DisconnectResponse{})
	case dialResult:
		state.discardStale(msg)
	case connectionLost:
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug("transport@disconnected unhandled", actorutil.TypeField(msg))
	}
}

func (state *TransportActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case dialResult:
		if msg.generation != state.generation {
			state.discardStale(msg)
			return
		}
		if msg.err != nil {
			state.logger.Warn("transport@connecting dial failed", zap.String("address", state.address), zap.Error(msg.err))
			state.respondPending(ctx, &domain.ConnectionError{Address: state.address, Err: msg.err})
			state.publish(domain.CONNECTION_STATE_FAILED)
			state.behavior.Become(state.DisconnectedReceive)
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Info("transport@connecting connected", zap.String("address", state.address))
		state.conn = msg.conn
		state.startReader(ctx, msg.generation, msg.conn)
		state.publish(domain.CONNECTION_STATE_CONNECTED)
		state.respondPending(ctx, nil)
		state.behavior.Become(state.ConnectedReceive)
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "connecting")
	case domain.SendFrameRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.SendFrameResponse{
			ActorResponseMixIn: domain.ErrorResponse(domain.ErrNotConnected),
		})
	case domain.DisconnectRequest:
		state.logger.Debug("transport@connecting DisconnectRequest")
		state.generation++
		state.respondPending(ctx, &domain.ConnectionError{Address: state.address, Err: domain.ErrTransportClosed})
		state.publish(domain.CONNECTION_STATE_DISCONNECTED)
		state.behavior.Become(state.DisconnectedReceive)
		actorutil.ForRequest(msg).Respond(ctx, domain.DisconnectResponse{})
		state.stash.UnstashAll(ctx)
	case connectionLost:
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug("transport@connecting stash", actorutil.TypeField(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TransportActor) ConnectedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SendFrameRequest:
		err := state.conn.Send(msg.Frame)
		if err != nil {
			state.logger.Warn("transport@connected send failed", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.SendFrameResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "connected")
	case domain.ConnectRequest:
		state.logger.Debug("transport@connected ConnectRequest, replacing connection")
		state.connect(ctx, msg)
	case domain.DisconnectRequest:
		state.logger.Info("transport@connected DisconnectRequest")
		state.closeConnection()
		state.publish(domain.CONNECTION_STATE_DISCONNECTED)
		state.behavior.Become(state.DisconnectedReceive)
		actorutil.ForRequest(msg).Respond(ctx, domain.DisconnectResponse{})
	case connectionLost:
		if msg.generation != state.generation {
			return
		}
		state.logger.Warn("transport@connected connection lost", zap.String("address", state.address), zap.Error(msg.err))
		state.conn = nil
		state.publish(domain.CONNECTION_STATE_DISCONNECTED)
		state.behavior.Become(state.DisconnectedReceive)
	case dialResult:
		state.discardStale(msg)
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug("transport@connected unhandled", actorutil.TypeField(msg))
	}
}

func (state *TransportActor) connect(ctx actor.Context, msg domain.ConnectRequest) {
	if state.conn != nil {
		state.closeConnection()
		state.publish(domain.CONNECTION_STATE_DISCONNECTED)
	}

	state.generation++
	generation := state.generation
	state.address = domain.ServerConnectionData{Host: msg.Host, Port: msg.Port}.Address()
	state.pending = actorutil.ForRequest(msg).ReplyTo(ctx)
	state.publish(domain.CONNECTION_STATE_CONNECTING)

	dialer := state.dialer
	timeout := state.connectTimeout
	actorutil.NewBackgroundTask(ctx, func() (*dialResult, error) {
		dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		conn, err := dialer.Dial(dialCtx, msg.Host, msg.Port)
		return &dialResult{generation: generation, conn: conn, err: err}, nil
	}).WithTimeout(timeout + time.Second).Recover(func(err error) dialResult {
		return dialResult{generation: generation, err: err}
	}).PipeTo(ctx.Self())

	state.behavior.Become(state.ConnectingReceive)
}

func (state *TransportActor) startReader(ctx actor.Context, generation uint64, conn panelsense_ws.Conn) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	router := state.router
	go func() {
		for frame := range conn.Frames() {
			root.Send(router, domain.InboundFrame{Data: frame})
		}
		root.Send(self, connectionLost{generation: generation, err: conn.Err()})
	}()
}

func (state *TransportActor) closeConnection() {
	if state.conn != nil {
		state.generation++
		state.conn.Close()
		state.conn = nil
	}
}

func (state *TransportActor) discardStale(msg dialResult) {
	if msg.conn != nil {
		state.logger.Debug("transport: closing stale connection")
		msg.conn.Close()
	}
}

func (state *TransportActor) respondPending(ctx actor.Context, err error) {
	if state.pending != nil {
		resp := domain.ConnectResponse{}
		if err != nil {
			resp.ResponseError = err
		}
		ctx.Send(state.pending, resp)
		state.pending = nil
	}
}

func (state *TransportActor) respondHealth(ctx actor.Context, msg domain.ActorHealthRequest, name string) {
	actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_TRANSPORT,
		Healthy: true,
		State:   name,
	})
}

func (state *TransportActor) publish(value domain.ConnectionState) {
	if state.metrics != nil {
		state.metrics.ConnectionState.Set(float64(value))
	}
	state.states.Publish(value)
}
