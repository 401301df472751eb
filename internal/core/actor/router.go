package actor

import (
	"fmt"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/events"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	. "github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// RouterActor decodes inbound frames and publishes them on the matching stream.
// Undecodable frames are logged and skipped.
type RouterActor struct {
	hubs    *stream.Hubs
	metrics *metric.Metrics
	logger  *zap.Logger

	framesRouted uint64
}

func NewRouterActor(hubs *stream.Hubs, metrics *metric.Metrics, logger *zap.Logger) *RouterActor {
	return &RouterActor{
		hubs:    hubs,
		metrics: metrics,
		logger:  ActorLogger(domain.ACTOR_ID_ROUTER, logger),
	}
}

func (state *RouterActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("router@default started")
	case domain.InboundFrame:
		state.route(msg.Data)
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ROUTER,
			Healthy: true,
			State:   fmt.Sprintf("default, %d frames routed", state.framesRouted),
		})
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.logger.Debug("router@default unhandled", TypeField(msg))
	}
}

func (state *RouterActor) route(frame []byte) {
	state.metrics.FramesReceived.Inc()

	decoded, err := panelsense_ws.Decode(frame)
	if err != nil {
		state.metrics.DecodeErrors.Inc()
		state.logger.Warn("router@default dropping frame", zap.Error(err))
		return
	}
	state.framesRouted++

	switch msg := decoded.(type) {
	case panelsense_ws.AuthResult:
		state.logger.Debug("router@default AuthResult", zap.String("result", string(msg.AuthResult)))
		state.hubs.AuthResults.Publish(events.AuthResultFromMessage(msg))
	case panelsense_ws.Configuration:
		conf := events.ConfigurationFromMessage(msg)
		state.logger.Debug("router@default Configuration", zap.Int("panels", len(conf.Panels)))
		state.hubs.Configuration.Publish(conf)
	case panelsense_ws.EntityStateMessage:
		entity := events.EntityStateFromMessage(msg)
		state.hubs.Entities.Publish(entity)
	default:
		state.logger.Debug("router@default ignoring message", TypeField(msg))
	}
}
