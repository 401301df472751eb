package domain

import (
	"errors"
	"fmt"

	"github.com/berfenger/panelsense/pkg/panelsense_ws"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrTransportClosed = errors.New("transport closed")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrAuthTimeout     = errors.New("authentication timed out")
	ErrLoginCancelled  = errors.New("login cancelled")
	ErrInvalidCommand  = errors.New("invalid command")
)

type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %s", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type AuthError struct {
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

type DecodeError = panelsense_ws.DecodeError

type TypeMismatchError struct {
	EntityId string
	Expected EntityDomain
	Actual   EntityDomain
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("entity %s is a %s, expected %s", e.EntityId, e.Actual, e.Expected)
}
