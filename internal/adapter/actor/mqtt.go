package actor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berfenger/panelsense/internal/config"
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/port"
	"github.com/berfenger/panelsense/internal/mqtt"
	"github.com/berfenger/panelsense/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const mqttCommandTimeout = 3 * time.Second

// MQTTClientFactory builds a broker client that reports connection loss to onLost.
type MQTTClientFactory func(onLost func(error)) *mqtt.MQTTClient

// PahoClientFactory connects to the broker configured in cfg.
func PahoClientFactory(cfg *config.Config) MQTTClientFactory {
	return func(onLost func(error)) *mqtt.MQTTClient {
		return mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), nil, func(_ pahomqtt.Client, err error) {
			onLost(err)
		})
	}
}

// MQTTActor mirrors entity states to retained MQTT topics and turns messages on
// the command topics into entity commands.
type MQTTActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	newClient MQTTClientFactory
	client    *mqtt.MQTTClient
	feed      port.EntityFeed
	commands  port.CommandSender
	discovery bool
	device    mqtt.HADiscoveryDevice
	logger    *zap.Logger

	unsubscribe func()
	discovered  map[string]bool
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	Error error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type entityUpdated struct {
	state domain.EntityState
}

func NewMQTTActor(cfg *config.Config, newClient MQTTClientFactory, feed port.EntityFeed, commands port.CommandSender,
	version string, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		newClient:  newClient,
		feed:       feed,
		commands:   commands,
		discovery:  cfg.MQTT.HADiscoveryEnable,
		device:     mqtt.BridgeDevice(version),
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		discovered: map[string]bool{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.client = state.newClient(func(err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topics
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		client := state.client
		client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, mirror current and future entity states
		state.logger.Debug("mqtt@starting subscribed")
		state.unsubscribe = state.feed.ObserveAllEntities(actorutil.Forwarder(ctx, ctx.Self(), func(s domain.EntityState) any {
			return entityUpdated{state: s}
		}))
		for _, s := range state.feed.EntityStates() {
			state.stash.Stash(ctx, entityUpdated{state: s})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "starting")
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case *actor.Stopped:
	default:
		state.logger.Debug("mqtt@starting stash", actorutil.TypeField(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		state.respondHealth(ctx, msg, "bridging")
	case entityUpdated:
		state.publishEntity(ctx, msg.state)
	case ParsedCommand:
		state.logger.Debug("mqtt@default ParsedCommand", zap.String("entity", msg.Command.EntityId), zap.String("payload", msg.Command.Payload))
		state.dispatch(ctx, msg.Command)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", actorutil.TypeField(msg))
	}
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, msg, "publishing")
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", actorutil.TypeField(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publishEntity(ctx actor.Context, entity domain.EntityState) {
	if state.discovery && !state.discovered[entity.EntityID()] {
		state.discovered[entity.EntityID()] = true
		if err := state.publishDiscovery(entity); err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
	}

	payload, err := json.Marshal(entity)
	if err != nil {
		state.logger.Error("mqtt@default could not encode entity", zap.String("entity", entity.EntityID()), zap.Error(err))
		return
	}
	topic := state.client.EntityStateTopic(entity.EntityID())
	state.logger.Sugar().Debugf("mqtt@publish: entity publish %s => %s", topic, payload)

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, 1, true, func(err error) {
		root.Send(self, publishResult{Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) publishDiscovery(entity domain.EntityState) error {
	msg, ok := mqtt.EntityToHADiscoveryMessage(state.client, state.device, entity)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	topic := mqtt.HADiscoveryTopic(state.client.DiscoveryPrefix(), entity)
	state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	return nil
}

func (state *MQTTActor) dispatch(ctx actor.Context, parsed *mqtt.ParsedMQTTCommand) {
	cmd, err := parsed.ToEntityCommand()
	if err != nil {
		state.logger.Warn("mqtt@default invalid command", zap.String("entity", parsed.EntityId), zap.Error(err))
		return
	}
	sender := state.commands
	logger := state.logger
	actorutil.NewBackgroundTaskErr(ctx, func() error {
		sendCtx, cancel := context.WithTimeout(context.Background(), mqttCommandTimeout)
		defer cancel()
		return sender.SendCommand(sendCtx, cmd)
	}).WithTimeout(mqttCommandTimeout + time.Second).OnError(func(err error) {
		logger.Warn("mqtt@default command failed", zap.String("entity", cmd.EntityId), zap.Error(err))
	}).RunAsync()
}

func (state *MQTTActor) respondHealth(ctx actor.Context, msg domain.ActorHealthRequest, name string) {
	actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MQTT,
		Healthy: true,
		State:   name,
	})
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.unsubscribe != nil {
		state.unsubscribe()
		state.unsubscribe = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}
