package port

import (
	"context"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
)

// SessionStore persists the data of the last successful login.
type SessionStore interface {
	LoadLastSession() (*domain.ServerConnectionData, error)
	SaveLastSession(data domain.ServerConnectionData) error
}

type VersionDataProvider interface {
	VersionName() string
	VersionCode() int
}

type AppDataProvider interface {
	InstallationId() string
}

// ReconnectPolicy returns the delay before reconnect attempt n (zero based), or
// false when no further attempt should be made.
type ReconnectPolicy interface {
	NextDelay(attempt int) (time.Duration, bool)
}

type CommandSender interface {
	SendCommand(ctx context.Context, cmd domain.EntityCommand) error
}

type StateRefresher interface {
	RequestEntitiesState(ctx context.Context, withDelay bool) error
}

// EntityFeed is the read side of the entity states, as seen by bridges.
type EntityFeed interface {
	ObserveAllEntities(fn func(domain.EntityState)) (unsubscribe func())
	EntityStates() []domain.EntityState
}

type SessionStateReader interface {
	CurrentSessionState() domain.SessionState
}
