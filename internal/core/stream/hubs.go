package stream

import (
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/metric"

	"go.uber.org/zap"
)

// Hubs groups the observable streams shared by the actors and the repository.
type Hubs struct {
	ConnectionStates *Stream[domain.ConnectionState]
	SessionStates    *Stream[domain.SessionState]
	Configuration    *Stream[domain.Configuration]
	AuthResults      *Stream[domain.AuthResult]
	Entities         *EntityHub
}

func NewHubs(metrics *metric.Metrics, logger *zap.Logger) *Hubs {
	return &Hubs{
		ConnectionStates: New[domain.ConnectionState]("connection", true, logger),
		SessionStates:    New[domain.SessionState]("session", true, logger),
		Configuration:    New[domain.Configuration]("configuration", true, logger),
		AuthResults:      New[domain.AuthResult]("auth", false, logger),
		Entities:         NewEntityHub(metrics, logger),
	}
}
