package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/panelsense/internal/config"
	"github.com/berfenger/panelsense/internal/core/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
	MQTT_PAYLOAD_TOGGLE  = "toggle"
	MQTT_PAYLOAD_OPEN    = "open"
	MQTT_PAYLOAD_CLOSE   = "close"
	MQTT_PAYLOAD_STOP    = "stop"
)

var ErrUnsupportedPayload = errors.New("unsupported command payload")

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("panelsense_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return NewMQTTClient(cfg.MQTT, mqtt.NewClient(opts))
}

// NewMQTTClient wraps an already configured paho client.
func NewMQTTClient(cfg config.MQTTConfig, client mqtt.Client) *MQTTClient {
	return &MQTTClient{
		client:              client,
		cfg:                 cfg,
		entityCommandRegexp: entityCommandExtractor(cfg.BaseTopic),
	}
}

type MQTTClient struct {
	client              mqtt.Client
	cfg                 config.MQTTConfig
	entityCommandRegexp *regexp.Regexp
}

type ParsedMQTTCommand struct {
	EntityId string
	Domain   string
	Payload  string
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) DiscoveryPrefix() string {
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

// EntityStateTopic maps `light.kitchen` to `<base>/light/kitchen/state`.
func (c *MQTTClient) EntityStateTopic(entityId string) string {
	entityDomain, objectId := splitEntityId(entityId)
	return fmt.Sprintf("%s/%s/%s/state", c.baseTopic(), entityDomain, objectId)
}

func (c *MQTTClient) EntityCommandTopic(entityId string) string {
	entityDomain, objectId := splitEntityId(entityId)
	return fmt.Sprintf("%s/%s/%s/set", c.baseTopic(), entityDomain, objectId)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return c.parseCommand(msg.Topic(), string(msg.Payload()))
}

func (c *MQTTClient) parseCommand(topic, payload string) (*ParsedMQTTCommand, error) {
	matches := c.entityCommandRegexp.FindAllStringSubmatch(topic, 1)
	if len(matches) == 0 {
		return nil, errors.New("invalid command")
	}
	if len(matches[0]) != 3 {
		return nil, errors.New("invalid entity command")
	}
	return &ParsedMQTTCommand{
		EntityId: fmt.Sprintf("%s.%s", matches[0][1], matches[0][2]),
		Domain:   matches[0][1],
		Payload:  strings.TrimSpace(payload),
	}, nil
}

// ToEntityCommand maps the payload of a parsed command to an entity action.
// Numbers set the brightness of lights and the position of covers.
func (p ParsedMQTTCommand) ToEntityCommand() (domain.EntityCommand, error) {
	cmd := domain.EntityCommand{
		EntityId: p.EntityId,
		Domain:   domain.EntityDomain(p.Domain),
	}
	switch strings.ToLower(p.Payload) {
	case MQTT_PAYLOAD_ON:
		cmd.Action = domain.ACTION_TURN_ON
	case MQTT_PAYLOAD_OFF:
		cmd.Action = domain.ACTION_TURN_OFF
	case MQTT_PAYLOAD_TOGGLE:
		cmd.Action = domain.ACTION_TOGGLE
	case MQTT_PAYLOAD_OPEN:
		cmd.Action = domain.ACTION_OPEN
	case MQTT_PAYLOAD_CLOSE:
		cmd.Action = domain.ACTION_CLOSE
	case MQTT_PAYLOAD_STOP:
		cmd.Action = domain.ACTION_STOP
	default:
		// try to parse a valid number
		value, err := strconv.ParseFloat(p.Payload, 64)
		if err != nil {
			return cmd, fmt.Errorf("%w: %q", ErrUnsupportedPayload, p.Payload)
		}
		intValue := int(value)
		switch cmd.Domain {
		case domain.DOMAIN_LIGHT:
			cmd.Action = domain.ACTION_SET_BRIGHTNESS
		case domain.DOMAIN_COVER:
			cmd.Action = domain.ACTION_SET_POSITION
		default:
			return cmd, fmt.Errorf("%w: %s takes no value", ErrUnsupportedPayload, cmd.Domain)
		}
		cmd.Value = &intValue
	}
	return cmd, cmd.Validate()
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/+/+/set", c.baseTopic())
}

func entityCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/([a-z0-9_]+)/([a-zA-Z0-9_]+)/set$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}

func splitEntityId(entityId string) (string, string) {
	entityDomain, objectId, found := strings.Cut(entityId, ".")
	if !found {
		return "unknown", entityId
	}
	return entityDomain, objectId
}
