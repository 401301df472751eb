package panelsense_ws

import (
	"encoding/json"
	"errors"
)

type RequestEntitiesStates struct{}

func (RequestEntitiesStates) MessageType() MessageType {
	return MESSAGE_TYPE_REQUEST_ENTITIES_STATES
}

type EntityCommandMessage struct {
	EntityId string `json:"entityId"`
	Domain   string `json:"domain"`
	Action   string `json:"action"`
	Value    *int   `json:"value,omitempty"`
}

func (EntityCommandMessage) MessageType() MessageType {
	return MESSAGE_TYPE_ENTITY_COMMAND
}

func decodeRequestEntitiesStates(_ json.RawMessage) (Message, error) {
	return RequestEntitiesStates{}, nil
}

func decodeEntityCommand(data json.RawMessage) (Message, error) {
	cmd, err := unmarshalData[EntityCommandMessage](data)
	if err != nil {
		return nil, err
	}
	if cmd.EntityId == "" || cmd.Action == "" {
		return nil, errors.New("command needs entityId and action")
	}
	return cmd, nil
}
