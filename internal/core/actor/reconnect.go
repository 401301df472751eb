package actor

import (
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/port"
	"github.com/berfenger/panelsense/internal/core/stream"
	. "github.com/berfenger/panelsense/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// ReconnectActor reconnects the transport to the last successful session after the
// connection is lost. It arms on the first CONNECTED and disarms on
// SuspendReconnectRequest until the next one.
type ReconnectActor struct {
	scheduler   *scheduler.TimerScheduler
	transport   *actor.PID
	states      *stream.Stream[domain.ConnectionState]
	store       port.SessionStore
	policy      port.ReconnectPolicy
	unsubscribe func()

	armed      bool
	attempt    int
	cancelTick scheduler.CancelFunc

	logger *zap.Logger
}

type reconnectTick struct {
}

func NewReconnectActor(transport *actor.PID, states *stream.Stream[domain.ConnectionState], store port.SessionStore,
	policy port.ReconnectPolicy, logger *zap.Logger) *ReconnectActor {
	return &ReconnectActor{
		transport: transport,
		states:    states,
		store:     store,
		policy:    policy,
		logger:    ActorLogger(domain.ACTOR_ID_RECONNECT, logger),
	}
}

func (state *ReconnectActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("reconnect@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.unsubscribe = state.states.SubscribeFunc(Forwarder(ctx, ctx.Self(), func(s domain.ConnectionState) any {
			return domain.ConnectionStateChanged{State: s}
		}))
	case *actor.Stopping, *actor.Restarting:
		state.stopTick()
		if state.unsubscribe != nil {
			state.unsubscribe()
			state.unsubscribe = nil
		}
	case domain.ConnectionStateChanged:
		state.onConnectionState(ctx, msg.State)
	case reconnectTick:
		state.cancelTick = nil
		if !state.armed {
			return
		}
		last := state.lastSession()
		if last == nil {
			return
		}
		state.logger.Info("reconnect@default reconnecting", zap.String("address", last.Address()), zap.Int("attempt", state.attempt))
		ctx.Send(state.transport, domain.ConnectRequest{Host: last.Host, Port: last.Port})
	case domain.SuspendReconnectRequest:
		state.logger.Debug("reconnect@default SuspendReconnectRequest")
		state.armed = false
		state.stopTick()
		ForRequest(msg).Respond(ctx, domain.SuspendReconnectResponse{})
	case domain.ActorHealthRequest:
		name := "idle"
		if !state.armed {
			name = "disarmed"
		} else if state.cancelTick != nil {
			name = "waiting"
		}
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RECONNECT,
			Healthy: true,
			State:   name,
		})
	case *actor.Stopped:
	default:
		state.logger.Debug("reconnect@default unhandled", TypeField(msg))
	}
}

func (state *ReconnectActor) onConnectionState(ctx actor.Context, value domain.ConnectionState) {
	switch value {
	case domain.CONNECTION_STATE_CONNECTED:
		state.armed = true
		state.attempt = 0
		state.stopTick()
	case domain.CONNECTION_STATE_DISCONNECTED, domain.CONNECTION_STATE_FAILED:
		if !state.armed || state.cancelTick != nil {
			return
		}
		if state.lastSession() == nil {
			return
		}
		delay, ok := state.policy.NextDelay(state.attempt)
		if !ok {
			state.logger.Warn("reconnect@default giving up", zap.Int("attempts", state.attempt))
			state.armed = false
			return
		}
		state.attempt++
		state.logger.Debug("reconnect@default scheduling", zap.Duration("delay", delay), zap.Int("attempt", state.attempt))
		state.cancelTick = state.scheduler.SendOnce(delay, ctx.Self(), reconnectTick{})
	}
}

func (state *ReconnectActor) lastSession() *domain.ServerConnectionData {
	if state.store == nil {
		return nil
	}
	last, err := state.store.LoadLastSession()
	if err != nil {
		state.logger.Warn("reconnect@default could not load last session", zap.Error(err))
		return nil
	}
	return last
}

func (state *ReconnectActor) stopTick() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
