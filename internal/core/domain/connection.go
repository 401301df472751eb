package domain

import "fmt"

type ConnectionState int

const (
	CONNECTION_STATE_DISCONNECTED ConnectionState = iota
	CONNECTION_STATE_CONNECTING
	CONNECTION_STATE_CONNECTED
	CONNECTION_STATE_FAILED
)

func (s ConnectionState) String() string {
	switch s {
	case CONNECTION_STATE_DISCONNECTED:
		return "DISCONNECTED"
	case CONNECTION_STATE_CONNECTING:
		return "CONNECTING"
	case CONNECTION_STATE_CONNECTED:
		return "CONNECTED"
	case CONNECTION_STATE_FAILED:
		return "FAILED"
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SessionState int

const (
	SESSION_STATE_IDLE SessionState = iota
	SESSION_STATE_AUTHENTICATING
	SESSION_STATE_AUTHENTICATED
	SESSION_STATE_FAILED
)

func (s SessionState) String() string {
	switch s {
	case SESSION_STATE_IDLE:
		return "IDLE"
	case SESSION_STATE_AUTHENTICATING:
		return "AUTHENTICATING"
	case SESSION_STATE_AUTHENTICATED:
		return "AUTHENTICATED"
	case SESSION_STATE_FAILED:
		return "FAILED"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ServerConnectionData holds everything needed to open and authenticate a session.
type ServerConnectionData struct {
	Host           string `json:"host" yaml:"host"`
	Port           uint   `json:"port" yaml:"port"`
	Username       string `json:"username" yaml:"username"`
	Password       string `json:"password" yaml:"password"`
	AccessToken    string `json:"accessToken,omitempty" yaml:"access_token,omitempty"`
	PanelSenseName string `json:"panelSenseName" yaml:"panel_sense_name"`
}

func (d ServerConnectionData) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

func (d ServerConnectionData) Redacted() ServerConnectionData {
	d.Password = "*redacted*"
	if d.AccessToken != "" {
		d.AccessToken = "*redacted*"
	}
	return d
}

type AuthResultCode string

const (
	AUTH_RESULT_SUCCESS AuthResultCode = "SUCCESS"
	AUTH_RESULT_FAILURE AuthResultCode = "FAILURE"
)

type AuthResult struct {
	Code   AuthResultCode
	Detail string
}

func (r AuthResult) Success() bool {
	return r.Code == AUTH_RESULT_SUCCESS
}
