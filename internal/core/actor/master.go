package actor

import (
	"sort"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/port"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	. "github.com/berfenger/panelsense/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type TransportActorProvider func(router *actor.PID) actor.Actor

// Components are the collaborators shared by the actors spawned by the master.
type Components struct {
	Hubs            *stream.Hubs
	Metrics         *metric.Metrics
	Store           port.SessionStore
	Version         port.VersionDataProvider
	AppData         port.AppDataProvider
	Transport       TransportActorProvider
	ReconnectPolicy port.ReconnectPolicy
	Session         SessionSettings
}

type MasterOfPuppetsActor struct {
	components Components
	behavior   actor.Behavior
	stash      *Stash

	currentHealthCheck healthCheckResult
	routerActor        *actor.PID
	transportActor     *actor.PID
	sessionActor       *actor.PID
	reconnectActor     *actor.PID
	children           map[string]*actor.PID
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	responses map[string]domain.ActorHealthResponse
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(components Components, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		components: components,
		behavior:   actor.NewBehavior(),
		stash:      &Stash{},
		children:   map[string]*actor.PID{},
		logger:     ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// router first, the transport forwards frames to it
		routerPID, err := state.spawnSupervised(ctx, domain.ACTOR_ID_ROUTER, func() actor.Actor {
			return NewRouterActor(state.components.Hubs, state.components.Metrics, state.logger)
		})
		if err != nil {
			panic(err)
		}
		state.routerActor = routerPID

		transportPID, err := state.startTransportActor(ctx)
		if err != nil {
			panic(err)
		}
		state.transportActor = transportPID

		sessionPID, err := state.spawnSupervised(ctx, domain.ACTOR_ID_SESSION, func() actor.Actor {
			c := state.components
			return NewSessionActor(state.transportActor, c.Hubs, c.Store, c.Version, c.AppData, c.Metrics, c.Session, state.logger)
		})
		if err != nil {
			panic(err)
		}
		state.sessionActor = sessionPID

		if state.components.ReconnectPolicy != nil {
			reconnectPID, err := state.spawnSupervised(ctx, domain.ACTOR_ID_RECONNECT, func() actor.Actor {
				c := state.components
				return NewReconnectActor(state.transportActor, c.Hubs.ConnectionStates, c.Store, c.ReconnectPolicy, state.logger)
			})
			if err != nil {
				panic(err)
			}
			state.reconnectActor = reconnectPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", TypeField(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTopologyRequest:
		ForRequest(msg).Respond(ctx, domain.GetTopologyResponse{
			Transport: state.transportActor,
			Router:    state.routerActor,
			Session:   state.sessionActor,
			Reconnect: state.reconnectActor,
		})
	case domain.AttachComponentRequest:
		state.logger.Debug("master@default AttachComponentRequest", zap.String("id", msg.Id))
		resp := domain.AttachComponentResponse{}
		if pid, ok := state.children[msg.Id]; ok {
			resp.PID = pid
		} else {
			pid, err := state.spawnSupervised(ctx, msg.Id, msg.Producer)
			resp.ResponseError = err
			resp.PID = pid
			if err == nil {
				state.children[msg.Id] = pid
			}
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ForRequest(msg).ReplyTo(ctx)

		for id, pid := range state.healthTargets() {
			id := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
					State:   "unresponsive",
				}
			})
			state.currentHealthCheck.expected++
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
		for id, pid := range state.children {
			if pid.Equal(msg.Who) {
				delete(state.children, id)
			}
		}
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug("master@default unhandled", TypeField(msg))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.responses[msg.Id] = msg
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", TypeField(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) healthTargets() map[string]*actor.PID {
	targets := map[string]*actor.PID{
		domain.ACTOR_ID_ROUTER:    state.routerActor,
		domain.ACTOR_ID_TRANSPORT: state.transportActor,
		domain.ACTOR_ID_SESSION:   state.sessionActor,
	}
	if state.reconnectActor != nil {
		targets[domain.ACTOR_ID_RECONNECT] = state.reconnectActor
	}
	for id, pid := range state.children {
		targets[id] = pid
	}
	return targets
}

func (state *MasterOfPuppetsActor) startTransportActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	router := state.routerActor
	transportProps := actor.PropsFromProducer(func() actor.Actor {
		return state.components.Transport(router)
	}, actor.WithSupervisor(supervisor))
	transportActorPID, err := ctx.SpawnNamed(transportProps, domain.ACTOR_ID_TRANSPORT)
	if err != nil {
		return nil, err
	}

	return transportActorPID, nil
}

func (state *MasterOfPuppetsActor) spawnSupervised(ctx actor.Context, id string, producer actor.Producer) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, SupervisorDecider(state.logger))

	props := actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, id)
}

func (state *healthCheckResult) reset() {
	state.expected = 0
	state.responses = map[string]domain.ActorHealthResponse{}
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return len(state.responses) >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	if len(state.responses) < state.expected {
		return false
	}
	for _, resp := range state.responses {
		if !resp.Healthy {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	children := make([]domain.ActorHealthResponse, 0, len(state.responses))
	for _, resp := range state.responses {
		children = append(children, resp)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Id < children[j].Id
	})
	resp := domain.ActorHealthResponse{
		Id:       domain.ACTOR_ID_MASTER,
		Healthy:  state.allHealthy(),
		Children: children,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
