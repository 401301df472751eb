package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/internal/mqtt"
	"github.com/berfenger/panelsense/internal/util"
	"github.com/berfenger/panelsense/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload string
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload string
	retain  bool
}

// fakeBroker implements the paho client and records what the bridge does.
type fakeBroker struct {
	mu           sync.Mutex
	messages     []published
	handler      pahomqtt.MessageHandler
	disconnected bool
}

func (b *fakeBroker) IsConnected() bool      { return true }
func (b *fakeBroker) IsConnectionOpen() bool { return true }
func (b *fakeBroker) Connect() pahomqtt.Token {
	return doneToken{}
}

func (b *fakeBroker) Disconnect(quiesce uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	var text string
	switch p := payload.(type) {
	case []byte:
		text = string(p)
	default:
		text = fmt.Sprintf("%v", p)
	}
	b.messages = append(b.messages, published{topic: topic, payload: text, retain: retained})
	return doneToken{}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = callback
	return doneToken{}
}

func (b *fakeBroker) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return doneToken{}
}

func (b *fakeBroker) Unsubscribe(topics ...string) pahomqtt.Token {
	return doneToken{}
}

func (b *fakeBroker) AddRoute(topic string, callback pahomqtt.MessageHandler) {
}

func (b *fakeBroker) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (b *fakeBroker) deliver(topic, payload string) bool {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(b, fakeMessage{topic: topic, payload: payload})
	return true
}

func (b *fakeBroker) last(topic string) (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.messages) - 1; i >= 0; i-- {
		if b.messages[i].topic == topic {
			return b.messages[i], true
		}
	}
	return published{}, false
}

func (b *fakeBroker) isDisconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

type hubFeed struct {
	hub *stream.EntityHub
}

func (f hubFeed) ObserveAllEntities(fn func(domain.EntityState)) func() {
	return f.hub.ObserveAllFunc(fn)
}

func (f hubFeed) EntityStates() []domain.EntityState {
	return f.hub.Snapshot()
}

type commandRecorder struct {
	mu       sync.Mutex
	commands []domain.EntityCommand
}

func (r *commandRecorder) SendCommand(ctx context.Context, cmd domain.EntityCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *commandRecorder) received() []domain.EntityCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EntityCommand(nil), r.commands...)
}

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	cfg.MQTT.HADiscoveryTopic = "homeassistant"

	logger := util.TestLogger()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	hub := stream.NewEntityHub(metric.NewTestMetrics(), logger)
	brightness := 120
	hub.Publish(domain.LightEntityState{
		EntityStateMixIn: domain.EntityStateMixIn{Id: "light.kitchen", FriendlyName: "Kitchen"},
		On:               true,
		Brightness:       &brightness,
	})

	broker := &fakeBroker{}
	commands := &commandRecorder{}
	factory := func(onLost func(error)) *mqtt.MQTTClient {
		return mqtt.NewMQTTClient(cfg.MQTT, broker)
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMQTTActor(&cfg, factory, hubFeed{hub: hub}, commands, "1.2.3", logger)
	})
	pid := as.Root.Spawn(props)

	// known states are mirrored on start
	assert.Eventually(func() bool {
		_, ok := broker.last("panelsense/light/kitchen/state")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	msg, _ := broker.last("panelsense/light/kitchen/state")
	assert.True(msg.retain)
	var light domain.LightEntityState
	assert.NoError(json.Unmarshal([]byte(msg.payload), &light))
	assert.True(light.On)
	assert.Equal(120, *light.Brightness)

	online, ok := broker.last("panelsense/bridge/state")
	assert.True(ok)
	assert.Equal(mqtt.MQTT_PAYLOAD_ONLINE, online.payload)

	discovery, ok := broker.last("homeassistant/light/panelsense_bridge/kitchen/config")
	assert.True(ok)
	var disConfig mqtt.HADiscoveryConfig
	assert.NoError(json.Unmarshal([]byte(discovery.payload), &disConfig))
	assert.Equal("Kitchen", disConfig.Name)
	assert.Equal("1.2.3", disConfig.Device.Version)

	// later updates follow
	hub.Publish(domain.SwitchEntityState{EntityStateMixIn: domain.EntityStateMixIn{Id: "switch.fan"}, On: false})
	assert.Eventually(func() bool {
		msg, ok := broker.last("panelsense/switch/fan/state")
		return ok && msg.payload == `{"entityId":"switch.fan","on":false}`
	}, 2*time.Second, 10*time.Millisecond)

	// commands from the broker reach the sender
	assert.True(broker.deliver("panelsense/switch/fan/set", "ON"))
	assert.True(broker.deliver("panelsense/switch/fan/set", "42"))
	assert.True(broker.deliver("panelsense/light/kitchen/set", "64"))
	assert.Eventually(func() bool {
		return len(commands.received()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	received := commands.received()
	assert.Contains(received, domain.EntityCommand{EntityId: "switch.fan", Domain: domain.DOMAIN_SWITCH, Action: domain.ACTION_TURN_ON})
	value := 64
	assert.Contains(received, domain.EntityCommand{EntityId: "light.kitchen", Domain: domain.DOMAIN_LIGHT, Action: domain.ACTION_SET_BRIGHTNESS, Value: &value})

	result, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)
	assert.Equal(domain.ACTOR_ID_MQTT, resp.Id)

	assert.NoError(as.Root.StopFuture(pid).Wait())
	offline, _ := broker.last("panelsense/bridge/state")
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, offline.payload)
	assert.True(broker.isDisconnected())
}
