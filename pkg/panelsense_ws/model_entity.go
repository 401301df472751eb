package panelsense_ws

import (
	"encoding/json"
	"errors"
	"strings"
)

type EntityAttributes struct {
	FriendlyName        *string `json:"friendly_name,omitempty"`
	Icon                *string `json:"icon,omitempty"`
	Brightness          *int    `json:"brightness,omitempty"`
	UnitOfMeasurement   *string `json:"unit_of_measurement,omitempty"`
	DeviceClass         *string `json:"device_class,omitempty"`
	CurrentPosition     *int    `json:"current_position,omitempty"`
	CurrentTiltPosition *int    `json:"current_tilt_position,omitempty"`
	SupportedFeatures   *int    `json:"supported_features,omitempty"`
}

type EntityStateMessage struct {
	EntityId   string           `json:"entityId"`
	Domain     string           `json:"domain"`
	State      string           `json:"state"`
	Attributes EntityAttributes `json:"attributes"`
}

func (EntityStateMessage) MessageType() MessageType {
	return MESSAGE_TYPE_ENTITY_STATE
}

// DomainFromEntityId returns the `light` part of `light.kitchen`.
func DomainFromEntityId(entityId string) string {
	domain, _, found := strings.Cut(entityId, ".")
	if !found {
		return ""
	}
	return domain
}

func decodeEntityState(data json.RawMessage) (Message, error) {
	msg, err := unmarshalData[EntityStateMessage](data)
	if err != nil {
		return nil, err
	}
	if msg.EntityId == "" {
		return nil, errors.New("missing entityId")
	}
	if msg.Domain == "" {
		msg.Domain = DomainFromEntityId(msg.EntityId)
	}
	if msg.Domain == "" {
		return nil, errors.New("missing domain")
	}
	return msg, nil
}

type Configuration struct {
	Panels []Panel         `json:"panels"`
	Raw    json.RawMessage `json:"-"`
}

type Panel struct {
	Id    string      `json:"id,omitempty"`
	Title string      `json:"title,omitempty"`
	Icon  string      `json:"icon,omitempty"`
	Items []PanelItem `json:"items"`
}

type PanelItem struct {
	Entity string  `json:"entity"`
	Domain string  `json:"domain,omitempty"`
	Title  *string `json:"title,omitempty"`
	Icon   *string `json:"icon,omitempty"`
}

func (Configuration) MessageType() MessageType {
	return MESSAGE_TYPE_CONFIGURATION
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	type plain Configuration
	return json.Marshal(plain(c))
}

func decodeConfiguration(data json.RawMessage) (Message, error) {
	type plain Configuration
	cfg, err := unmarshalData[plain](data)
	if err != nil {
		return nil, err
	}
	cfg.Raw = append(json.RawMessage(nil), data...)
	return Configuration(cfg), nil
}
