package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/panelsense/internal/config"
	"github.com/berfenger/panelsense/internal/core/domain"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Backend is the part of the repository exposed over HTTP.
type Backend interface {
	Login(ctx context.Context, data domain.ServerConnectionData) error
	Disconnect(ctx context.Context) error
	CurrentConnectionState() domain.ConnectionState
	CurrentSessionState() domain.SessionState
	CurrentConfiguration() (domain.Configuration, bool)
	LatestEntityState(entityId string) (domain.EntityState, bool)
	ObserveEntityStateWithLatest(ctx context.Context, entityId string, entityDomain domain.EntityDomain) <-chan domain.EntityState
	RequestEntitiesState(ctx context.Context, withDelay bool) error
	SendCommand(ctx context.Context, cmd domain.EntityCommand) error
	Health(ctx context.Context) (domain.ActorHealthResponse, error)
}

type Server struct {
	port     uint
	httpLog  bool
	backend  Backend
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewServer(cfg config.Config, backend Backend, gatherer prometheus.Gatherer, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:     cfg.Port,
		httpLog:  cfg.HttpLog,
		backend:  backend,
		gatherer: gatherer,
		logger:   logger.With(zap.String("service", "http")),
	}

	// Declare Server config. No write timeout, entity streams stay open.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", NewServer.port),
		Handler:     NewServer.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
	}

	return server
}
