package mqtt

import (
	"fmt"
	"strings"

	"github.com/berfenger/panelsense/internal/core/domain"
)

const HA_DISCOVERY_DEVICE_ID = "panelsense_bridge"

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	ValueTemplate     string            `json:"value_template,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	StateOn           string            `json:"state_on,omitempty"`
	StateOff          string            `json:"state_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`

	// light
	BrightnessCommandTopic  string `json:"brightness_command_topic,omitempty"`
	BrightnessStateTopic    string `json:"brightness_state_topic,omitempty"`
	BrightnessValueTemplate string `json:"brightness_value_template,omitempty"`

	// cover
	PayloadOpen      string `json:"payload_open,omitempty"`
	PayloadClose     string `json:"payload_close,omitempty"`
	PayloadStop      string `json:"payload_stop,omitempty"`
	PositionTopic    string `json:"position_topic,omitempty"`
	PositionTemplate string `json:"position_template,omitempty"`
	SetPositionTopic string `json:"set_position_topic,omitempty"`
	StateOpen        string `json:"state_open,omitempty"`
	StateClosed      string `json:"state_closed,omitempty"`
	StateOpening     string `json:"state_opening,omitempty"`
	StateClosing     string `json:"state_closing,omitempty"`
	StateStopped     string `json:"state_stopped,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
}

func BridgeDevice(version string) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{HA_DISCOVERY_DEVICE_ID},
		Manufacturer: "PanelSense",
		Version:      version,
		Model:        "Dashboard bridge",
		Name:         "PanelSense",
	}
}

// HADiscoveryTopic returns an empty string for domains without a discovery mapping.
func HADiscoveryTopic(prefix string, state domain.EntityState) string {
	component := discoveryComponent(state)
	if component == "" {
		return ""
	}
	_, objectId := splitEntityId(state.EntityID())
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, HA_DISCOVERY_DEVICE_ID, objectId)
}

func discoveryComponent(state domain.EntityState) string {
	switch state.(type) {
	case domain.LightEntityState:
		return "light"
	case domain.SwitchEntityState:
		return "switch"
	case domain.SensorEntityState:
		return "sensor"
	case domain.CoverEntityState:
		return "cover"
	}
	return ""
}

// EntityToHADiscoveryMessage describes state for Home Assistant. The state topic
// carries the JSON document published by the bridge, read back with templates.
func EntityToHADiscoveryMessage(client *MQTTClient, dev HADiscoveryDevice, state domain.EntityState) (HADiscoveryConfig, bool) {
	stateTopic := client.EntityStateTopic(state.EntityID())
	cmdTopic := client.EntityCommandTopic(state.EntityID())
	disConfig := HADiscoveryConfig{
		Device:     dev,
		StateTopic: stateTopic,
		AvTopic:    client.BridgeStateTopic(),
		Name:       state.DisplayName(),
		UniqueId:   "panelsense_" + strings.ReplaceAll(state.EntityID(), ".", "_"),
		Platform:   "mqtt",
	}
	switch s := state.(type) {
	case domain.LightEntityState:
		disConfig.Icon = mdiIcon(s.Icon)
		disConfig.CommandTopic = cmdTopic
		disConfig.ValueTemplate = "{{ 'on' if value_json.on else 'off' }}"
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
		disConfig.StateOn = MQTT_PAYLOAD_ON
		disConfig.StateOff = MQTT_PAYLOAD_OFF
		disConfig.BrightnessCommandTopic = cmdTopic
		disConfig.BrightnessStateTopic = stateTopic
		disConfig.BrightnessValueTemplate = "{{ value_json.brightness | default(0) }}"
	case domain.SwitchEntityState:
		disConfig.Icon = mdiIcon(s.Icon)
		disConfig.CommandTopic = cmdTopic
		disConfig.ValueTemplate = "{{ 'on' if value_json.on else 'off' }}"
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
		disConfig.StateOn = MQTT_PAYLOAD_ON
		disConfig.StateOff = MQTT_PAYLOAD_OFF
	case domain.SensorEntityState:
		disConfig.Icon = mdiIcon(s.Icon)
		disConfig.DeviceClass = s.DeviceClass
		disConfig.UnitOfMeasurement = s.UnitOfMeasurement
		if s.NumericValue != nil {
			disConfig.StateClass = "measurement"
			disConfig.ValueTemplate = "{{ value_json.numericValue }}"
		} else {
			disConfig.ValueTemplate = "{{ value_json.value }}"
		}
	case domain.CoverEntityState:
		disConfig.Icon = mdiIcon(s.Icon)
		disConfig.DeviceClass = string(s.DeviceClass)
		disConfig.CommandTopic = cmdTopic
		disConfig.ValueTemplate = "{{ value_json.state }}"
		disConfig.PayloadOpen = MQTT_PAYLOAD_OPEN
		disConfig.PayloadClose = MQTT_PAYLOAD_CLOSE
		disConfig.PayloadStop = MQTT_PAYLOAD_STOP
		disConfig.StateOpen = string(domain.COVER_STATE_OPEN)
		disConfig.StateClosed = string(domain.COVER_STATE_CLOSED)
		disConfig.StateOpening = string(domain.COVER_STATE_OPENING)
		disConfig.StateClosing = string(domain.COVER_STATE_CLOSING)
		disConfig.StateStopped = string(domain.COVER_STATE_STOPPED)
		if s.SupportedFeatures.Has(domain.COVER_FEATURE_SET_POSITION) {
			disConfig.PositionTopic = stateTopic
			disConfig.PositionTemplate = "{{ value_json.position | default(0) }}"
			disConfig.SetPositionTopic = cmdTopic
		}
	default:
		return disConfig, false
	}
	return disConfig, true
}

// panel icons already use the mdi: prefix, bare names get it added
func mdiIcon(icon string) string {
	if icon == "" || strings.Contains(icon, ":") {
		return icon
	}
	return "mdi:" + icon
}
