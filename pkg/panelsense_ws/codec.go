package panelsense_ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MESSAGE_TYPE_AUTH                    MessageType = "AUTH"
	MESSAGE_TYPE_CONFIGURATION           MessageType = "CONFIGURATION"
	MESSAGE_TYPE_ENTITY_STATE            MessageType = "ENTITY_STATE"
	MESSAGE_TYPE_REQUEST_ENTITIES_STATES MessageType = "REQUEST_ENTITIES_STATES"
	MESSAGE_TYPE_ENTITY_COMMAND          MessageType = "ENTITY_COMMAND"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// Message is implemented by every payload that can travel inside a frame.
type Message interface {
	MessageType() MessageType
}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type DecodeError struct {
	Type   MessageType
	Reason error
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode error: %s", e.Reason)
	if e.Type != "" {
		msg = fmt.Sprintf("decode error (%s): %s", e.Type, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause)
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Reason, e.Cause}
	}
	return []error{e.Reason}
}

type decoderFunc func(data json.RawMessage) (Message, error)

// server -> client
var inboundDecoders = map[MessageType]decoderFunc{
	MESSAGE_TYPE_AUTH:          decodeAuthResult,
	MESSAGE_TYPE_CONFIGURATION: decodeConfiguration,
	MESSAGE_TYPE_ENTITY_STATE:  decodeEntityState,
}

// client -> server
var outboundDecoders = map[MessageType]decoderFunc{
	MESSAGE_TYPE_AUTH:                    decodeAuthRequest,
	MESSAGE_TYPE_REQUEST_ENTITIES_STATES: decodeRequestEntitiesStates,
	MESSAGE_TYPE_ENTITY_COMMAND:          decodeEntityCommand,
}

// Encode wraps msg into a `{"type": ..., "data": ...}` text frame.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("cannot encode nil message")
	}
	env := envelope{Type: msg.MessageType()}
	if _, empty := msg.(RequestEntitiesStates); !empty {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a frame sent by the server.
func Decode(frame []byte) (Message, error) {
	return decodeWith(inboundDecoders, frame)
}

// DecodeOutbound parses a frame sent by a client. Used by servers and test doubles.
func DecodeOutbound(frame []byte) (Message, error) {
	return decodeWith(outboundDecoders, frame)
}

func decodeWith(decoders map[MessageType]decoderFunc, frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Reason: ErrMalformedFrame, Cause: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: ErrMalformedFrame, Cause: errors.New("missing type")}
	}
	decoder, ok := decoders[env.Type]
	if !ok {
		return nil, &DecodeError{Type: env.Type, Reason: ErrUnknownMessageType}
	}
	msg, err := decoder(env.Data)
	if err != nil {
		return nil, &DecodeError{Type: env.Type, Reason: ErrInvalidPayload, Cause: err}
	}
	return msg, nil
}

func unmarshalData[T any](data json.RawMessage) (T, error) {
	var value T
	if len(data) == 0 || string(data) == "null" {
		return value, errors.New("missing data")
	}
	err := json.Unmarshal(data, &value)
	return value, err
}
