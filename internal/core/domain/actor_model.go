package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_TRANSPORT = "transport"
	ACTOR_ID_ROUTER    = "router"
	ACTOR_ID_SESSION   = "session"
	ACTOR_ID_RECONNECT = "reconnect"
	ACTOR_ID_MQTT      = "mqtt"
)

// ActorRequestMixIn lets a request name the actor that gets the response. When
// ReplyToRef is nil the response goes to the sender.
type ActorRequestMixIn struct {
	ReplyToRef *actor.PID
}

type ActorRequest interface {
	ReplyTo() *actor.PID
}

func (r ActorRequestMixIn) ReplyTo() *actor.PID {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

func ErrorResponse(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

// transport

type ConnectRequest struct {
	ActorRequestMixIn
	Host string
	Port uint
}

type ConnectResponse struct {
	ActorResponseMixIn
}

type DisconnectRequest struct {
	ActorRequestMixIn
}

type DisconnectResponse struct {
	ActorResponseMixIn
}

type SendFrameRequest struct {
	ActorRequestMixIn
	Frame []byte
}

type SendFrameResponse struct {
	ActorResponseMixIn
}

// InboundFrame carries one raw text frame from the transport to the router.
type InboundFrame struct {
	Data []byte
}

// session

type LoginRequest struct {
	ActorRequestMixIn
	Id   string
	Data ServerConnectionData
}

type LoginResponse struct {
	ActorResponseMixIn
}

type CancelLoginRequest struct {
	Id string
}

type ConnectionStateChanged struct {
	State ConnectionState
}

type AuthResultReceived struct {
	Result AuthResult
}

// reconnect

type SuspendReconnectRequest struct {
	ActorRequestMixIn
}

type SuspendReconnectResponse struct {
	ActorResponseMixIn
}

// master

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id       string
	Healthy  bool
	State    string
	Children []ActorHealthResponse
}

type GetTopologyRequest struct {
	ActorRequestMixIn
}

type GetTopologyResponse struct {
	ActorResponseMixIn
	Transport *actor.PID
	Router    *actor.PID
	Session   *actor.PID
	Reconnect *actor.PID
}

// AttachComponentRequest asks the master to spawn and supervise an optional actor.
type AttachComponentRequest struct {
	ActorRequestMixIn
	Id       string
	Producer actor.Producer
}

type AttachComponentResponse struct {
	ActorResponseMixIn
	PID *actor.PID
}
