package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreactor "github.com/berfenger/panelsense/internal/core/actor"
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository is the entry point for UI code: it logs in, exposes the observable
// connection, session, configuration and entity streams, and sends commands.
type Repository struct {
	system     *actor.ActorSystem
	master     *actor.PID
	topology   domain.GetTopologyResponse
	hubs       *stream.Hubs
	dispatcher *CommandDispatcher
	settings   coreactor.SessionSettings
	logger     *zap.Logger
}

// NewRepository spawns the actor tree on system and waits until it is ready.
func NewRepository(system *actor.ActorSystem, components coreactor.Components, logger *zap.Logger) (*Repository, error) {
	root := system.Root
	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterOfPuppetsActor(components, logger)
	})
	master, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return nil, err
	}

	res, err := root.RequestFuture(master, domain.GetTopologyRequest{}, 5*time.Second).Result()
	if err != nil {
		root.Stop(master)
		return nil, fmt.Errorf("actor tree did not start: %w", err)
	}
	topology, ok := res.(domain.GetTopologyResponse)
	if !ok {
		root.Stop(master)
		return nil, fmt.Errorf("unexpected topology response %T", res)
	}

	repoLogger := logger.With(zap.String("service", "repository"))
	return &Repository{
		system:     system,
		master:     master,
		topology:   topology,
		hubs:       components.Hubs,
		dispatcher: NewCommandDispatcher(root, topology.Transport, components.Hubs.ConnectionStates, components.Metrics, logger),
		settings:   components.Session,
		logger:     repoLogger,
	}, nil
}

// Login connects and authenticates. Concurrent calls are served one at a time.
// When ctx ends first the attempt is aborted and the session returns to IDLE.
func (r *Repository) Login(ctx context.Context, data domain.ServerConnectionData) error {
	id := uuid.NewString()
	r.logger.Info("login", zap.String("id", id), zap.String("address", data.Address()))

	// one queued attempt ahead of this one still fits
	timeout := 2*(r.settings.ConnectTimeout+r.settings.AuthTimeout) + 5*time.Second
	res, err := request(ctx, r.system.Root, r.topology.Session, domain.LoginRequest{Id: id, Data: data}, timeout)
	if err != nil {
		if ctx.Err() != nil {
			r.system.Root.Send(r.topology.Session, domain.CancelLoginRequest{Id: id})
		}
		return err
	}
	resp, ok := res.(domain.LoginResponse)
	if !ok {
		return fmt.Errorf("unexpected login response %T", res)
	}
	return resp.GetResponseError()
}

func (r *Repository) ConnectionState(ctx context.Context) <-chan domain.ConnectionState {
	return r.hubs.ConnectionStates.Subscribe(ctx)
}

func (r *Repository) CurrentConnectionState() domain.ConnectionState {
	state, _ := r.hubs.ConnectionStates.Latest()
	return state
}

func (r *Repository) SessionState(ctx context.Context) <-chan domain.SessionState {
	return r.hubs.SessionStates.Subscribe(ctx)
}

func (r *Repository) CurrentSessionState() domain.SessionState {
	state, _ := r.hubs.SessionStates.Latest()
	return state
}

// Configuration replays the last configuration received, then every update.
func (r *Repository) Configuration(ctx context.Context) <-chan domain.Configuration {
	return r.hubs.Configuration.Subscribe(ctx)
}

func (r *Repository) CurrentConfiguration() (domain.Configuration, bool) {
	return r.hubs.Configuration.Latest()
}

// ObserveEntityState streams future states of entityId. An empty entityDomain
// accepts any domain.
func (r *Repository) ObserveEntityState(ctx context.Context, entityId string, entityDomain domain.EntityDomain) <-chan domain.EntityState {
	return r.hubs.Entities.Observe(ctx, entityId, entityDomain)
}

// ObserveEntityStateWithLatest is ObserveEntityState preceded by the cached state.
func (r *Repository) ObserveEntityStateWithLatest(ctx context.Context, entityId string, entityDomain domain.EntityDomain) <-chan domain.EntityState {
	return r.hubs.Entities.ObserveWithLatest(ctx, entityId, entityDomain)
}

func (r *Repository) ObserveAllEntities(fn func(domain.EntityState)) (unsubscribe func()) {
	return r.hubs.Entities.ObserveAllFunc(fn)
}

func (r *Repository) LatestEntityState(entityId string) (domain.EntityState, bool) {
	return r.hubs.Entities.Latest(entityId)
}

func (r *Repository) EntityStates() []domain.EntityState {
	return r.hubs.Entities.Snapshot()
}

// RequestEntitiesState asks the server to push every entity state again, after the
// configured delay when withDelay is set.
func (r *Repository) RequestEntitiesState(ctx context.Context, withDelay bool) error {
	if withDelay && r.settings.RequestStateDelay > 0 {
		timer := time.NewTimer(r.settings.RequestStateDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if state, _ := r.hubs.ConnectionStates.Latest(); state != domain.CONNECTION_STATE_CONNECTED {
		return domain.ErrNotConnected
	}
	frame, err := panelsense_ws.Encode(panelsense_ws.RequestEntitiesStates{})
	if err != nil {
		return err
	}
	return r.dispatcher.sendFrame(ctx, frame)
}

func (r *Repository) SendCommand(ctx context.Context, cmd domain.EntityCommand) error {
	return r.dispatcher.Send(ctx, cmd)
}

// Disconnect closes the connection and keeps it closed until the next login.
func (r *Repository) Disconnect(ctx context.Context) error {
	if r.topology.Reconnect != nil {
		if _, err := request(ctx, r.system.Root, r.topology.Reconnect, domain.SuspendReconnectRequest{}, DEFAULT_REQUEST_TIMEOUT); err != nil {
			return err
		}
	}
	res, err := request(ctx, r.system.Root, r.topology.Transport, domain.DisconnectRequest{}, DEFAULT_REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	if resp, ok := res.(domain.DisconnectResponse); ok {
		return resp.GetResponseError()
	}
	return nil
}

// AttachComponent spawns an optional actor under the master. It takes part in
// health checks and is restarted on failure.
func (r *Repository) AttachComponent(ctx context.Context, id string, producer actor.Producer) (*actor.PID, error) {
	res, err := request(ctx, r.system.Root, r.master, domain.AttachComponentRequest{Id: id, Producer: producer}, DEFAULT_REQUEST_TIMEOUT)
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.AttachComponentResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected attach response %T", res)
	}
	return resp.PID, resp.GetResponseError()
}

func (r *Repository) Health(ctx context.Context) (domain.ActorHealthResponse, error) {
	res, err := request(ctx, r.system.Root, r.master, domain.ActorHealthRequest{}, 3*time.Second)
	if err != nil {
		return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER}, err
	}
	resp, ok := res.(domain.ActorHealthResponse)
	if !ok {
		return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER}, errors.New("unexpected health response")
	}
	return resp, nil
}

// Close stops the actor tree. The transport closes its connection on the way down.
func (r *Repository) Close() error {
	return r.system.Root.StopFuture(r.master).Wait()
}

// ObserveEntity streams the states of entityId typed as T. States of another
// domain are dropped.
func ObserveEntity[T domain.EntityState](ctx context.Context, r *Repository, entityId string) <-chan T {
	in := r.hubs.Entities.Observe(ctx, entityId, expectedDomain[T]())
	out := make(chan T, stream.DEFAULT_SUBSCRIBER_BUFFER)
	go func() {
		defer close(out)
		for state := range in {
			if typed, ok := state.(T); ok {
				select {
				case out <- typed:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// expectedDomain is the domain of the concrete state type T, or empty when T is an
// interface, a pointer or the generic state.
func expectedDomain[T domain.EntityState]() domain.EntityDomain {
	var zero T
	switch any(zero).(type) {
	case domain.LightEntityState, domain.SwitchEntityState, domain.SensorEntityState, domain.CoverEntityState:
		return zero.Domain()
	}
	return ""
}
