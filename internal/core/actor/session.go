package actor

import (
	"time"

	"github.com/berfenger/panelsense/internal/config"
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/port"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	. "github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

type SessionSettings struct {
	ClientName        string
	ConnectTimeout    time.Duration
	AuthTimeout       time.Duration
	RequestStateDelay time.Duration
}

// SessionActor drives the login handshake on top of the transport and replays it
// silently whenever the connection comes back after a successful login.
type SessionActor struct {
	ActorWithStates
	scheduler *scheduler.TimerScheduler
	stash     *Stash
	transport *actor.PID
	hubs      *stream.Hubs
	store     port.SessionStore
	version   port.VersionDataProvider
	appData   port.AppDataProvider
	metrics   *metric.Metrics
	settings  SessionSettings

	lastSuccessful *domain.ServerConnectionData
	attempts       uint64
	unsubscribe    []func()

	logger *zap.Logger
}

type loginAttempt struct {
	id            uint64
	loginId       string
	data          domain.ServerConnectionData
	replyTo       *actor.PID
	silent        bool
	connected     bool
	authSent      bool
	cancelTimeout scheduler.CancelFunc
}

type connectOutcome struct {
	attempt uint64
	err     error
}

type sendOutcome struct {
	attempt uint64
	err     error
}

type authTimeout struct {
	attempt uint64
}

func NewSessionActor(transport *actor.PID, hubs *stream.Hubs, store port.SessionStore, version port.VersionDataProvider,
	appData port.AppDataProvider, metrics *metric.Metrics, settings SessionSettings, logger *zap.Logger) *SessionActor {
	act := &SessionActor{
		stash:     &Stash{},
		transport: transport,
		hubs:      hubs,
		store:     store,
		version:   version,
		appData:   appData,
		metrics:   metrics,
		settings:  settings,
		logger:    ActorLogger(domain.ACTOR_ID_SESSION, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SessionIdleState{actor: act})
	return act
}

func (state *SessionActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.start(ctx)
		return
	case *actor.Stopping, *actor.Restarting:
		for _, unsub := range state.unsubscribe {
			unsub()
		}
		state.unsubscribe = nil
		return
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SESSION,
			Healthy: true,
			State:   state.StateName(),
		})
		return
	}
	state.Behavior.Receive(ctx)
}

func (state *SessionActor) start(ctx actor.Context) {
	state.logger.Debug("session@idle started")
	state.scheduler = scheduler.NewTimerScheduler(ctx)

	self := ctx.Self()
	state.unsubscribe = append(state.unsubscribe,
		state.hubs.ConnectionStates.SubscribeFunc(Forwarder(ctx, self, func(s domain.ConnectionState) any {
			return domain.ConnectionStateChanged{State: s}
		})),
		state.hubs.AuthResults.SubscribeFunc(Forwarder(ctx, self, func(r domain.AuthResult) any {
			return domain.AuthResultReceived{Result: r}
		})),
	)

	if state.store != nil {
		last, err := state.store.LoadLastSession()
		if err != nil {
			state.logger.Warn("session@idle could not load last session", zap.Error(err))
		} else if last != nil {
			state.logger.Info("session@idle restored last session", zap.String("address", last.Address()))
			state.lastSuccessful = last
		}
	}
	state.hubs.SessionStates.Publish(domain.SESSION_STATE_IDLE)
}

func (state *SessionActor) beginLogin(ctx actor.Context, data domain.ServerConnectionData, loginId string, replyTo *actor.PID, silent bool) {
	state.attempts++
	attempt := &loginAttempt{
		id:      state.attempts,
		loginId: loginId,
		data:    data,
		replyTo: replyTo,
		silent:  silent,
	}
	state.logger.Info("session login", zap.String("address", data.Address()), zap.Bool("silent", silent))

	state.hubs.SessionStates.Publish(domain.SESSION_STATE_AUTHENTICATING)
	authenticating := SessionAuthenticatingState{actor: state, attempt: attempt}
	state.Become(authenticating)
	if silent {
		// the transport is already connected, only the auth exchange is replayed
		attempt.connected = true
		authenticating.sendAuth(ctx)
		return
	}

	future := ctx.RequestFuture(state.transport, domain.ConnectRequest{Host: data.Host, Port: data.Port}, state.settings.ConnectTimeout+2*time.Second)
	PipeResultToSelf(ctx, future, func(msg any, err error) any {
		if err == nil {
			if resp, ok := msg.(domain.ConnectResponse); ok {
				err = resp.GetResponseError()
			}
		}
		return connectOutcome{attempt: attempt.id, err: err}
	})
}

func (state *SessionActor) authRequest(data domain.ServerConnectionData) panelsense_ws.AuthRequest {
	req := panelsense_ws.AuthRequest{
		Token:      panelsense_ws.CredentialToken(data.Username, data.Password),
		ClientName: state.settings.ClientName,
	}
	if data.PanelSenseName != "" {
		req.ClientName = data.PanelSenseName
	}
	if state.version != nil {
		req.VersionName = state.version.VersionName()
		req.VersionCode = state.version.VersionCode()
	}
	if state.appData != nil {
		req.InstallationId = state.appData.InstallationId()
	}
	return req
}

func (state *SessionActor) scheduleStateRequest(ctx actor.Context) {
	frame, err := panelsense_ws.Encode(panelsense_ws.RequestEntitiesStates{})
	if err != nil {
		state.logger.Error("session could not encode state request", zap.Error(err))
		return
	}
	state.scheduler.SendOnce(state.settings.RequestStateDelay, state.transport, domain.SendFrameRequest{Frame: frame})
}

// Idle state

type SessionIdleState struct {
	ActorState
	actor *SessionActor
}

func (state SessionIdleState) Name() string {
	return "idle"
}

func (state SessionIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.LoginRequest:
		state.actor.logger.Debug("session@idle LoginRequest", zap.String("id", msg.Id))
		state.actor.beginLogin(ctx, msg.Data, msg.Id, ForRequest(msg).ReplyTo(ctx), false)
	case domain.ConnectionStateChanged:
		if msg.State == domain.CONNECTION_STATE_CONNECTED && state.actor.lastSuccessful != nil {
			state.actor.logger.Debug("session@idle connection restored, replaying handshake")
			state.actor.beginLogin(ctx, *state.actor.lastSuccessful, "", nil, true)
		}
	case domain.AuthResultReceived, domain.CancelLoginRequest, connectOutcome, sendOutcome, authTimeout:
		// stale
	default:
		state.actor.logger.Debug("session@idle unhandled", TypeField(msg))
	}
}

// Authenticating state

type SessionAuthenticatingState struct {
	ActorState
	actor   *SessionActor
	attempt *loginAttempt
}

func (state SessionAuthenticatingState) Name() string {
	return "authenticating"
}

func (state SessionAuthenticatingState) Receive(ctx actor.Context) {
	attempt := state.attempt
	switch msg := ctx.Message().(type) {
	case connectOutcome:
		if msg.attempt != attempt.id {
			return
		}
		if msg.err != nil {
			state.actor.logger.Warn("session@authenticating connect failed", zap.Error(msg.err))
			state.fail(ctx, msg.err)
			return
		}
		attempt.connected = true
		state.sendAuth(ctx)
	case sendOutcome:
		if msg.attempt == attempt.id && msg.err != nil {
			state.actor.logger.Warn("session@authenticating auth send failed", zap.Error(msg.err))
			state.fail(ctx, &domain.ConnectionError{Address: attempt.data.Address(), Err: msg.err})
		}
	case domain.AuthResultReceived:
		if !attempt.authSent {
			state.actor.logger.Debug("session@authenticating ignoring unsolicited auth result")
			return
		}
		if msg.Result.Success() {
			state.succeed(ctx)
		} else {
			state.actor.logger.Warn("session@authenticating rejected", zap.String("detail", msg.Result.Detail))
			state.fail(ctx, &domain.AuthError{Detail: msg.Result.Detail, Err: domain.ErrAuthRejected})
		}
	case authTimeout:
		if msg.attempt == attempt.id {
			state.actor.logger.Warn("session@authenticating timed out")
			state.fail(ctx, &domain.AuthError{Err: domain.ErrAuthTimeout})
		}
	case domain.ConnectionStateChanged:
		if attempt.connected && (msg.State == domain.CONNECTION_STATE_DISCONNECTED || msg.State == domain.CONNECTION_STATE_FAILED) {
			state.actor.logger.Warn("session@authenticating connection lost")
			state.fail(ctx, &domain.ConnectionError{Address: attempt.data.Address(), Err: domain.ErrTransportClosed})
		}
	case domain.CancelLoginRequest:
		if msg.Id != "" && msg.Id == attempt.loginId {
			state.actor.logger.Info("session@authenticating login cancelled", zap.String("id", msg.Id))
			state.stopTimeout()
			state.respond(ctx, domain.ErrLoginCancelled)
			state.actor.hubs.SessionStates.Publish(domain.SESSION_STATE_IDLE)
			state.actor.Become(SessionIdleState{actor: state.actor})
			state.actor.stash.UnstashAll(ctx)
			return
		}
		dropped := state.actor.stash.Discard(func(stashed any) bool {
			req, ok := stashed.(domain.LoginRequest)
			return ok && req.Id == msg.Id
		})
		state.actor.logger.Debug("session@authenticating discarded queued login", zap.String("id", msg.Id), zap.Int("dropped", dropped))
	case domain.LoginRequest:
		state.actor.logger.Debug("session@authenticating stash LoginRequest", zap.String("id", msg.Id))
		state.actor.stash.Stash(ctx, msg)
	default:
		state.actor.logger.Debug("session@authenticating unhandled", TypeField(msg))
	}
}

func (state SessionAuthenticatingState) sendAuth(ctx actor.Context) {
	attempt := state.attempt
	frame, err := panelsense_ws.Encode(state.actor.authRequest(attempt.data))
	if err != nil {
		state.fail(ctx, err)
		return
	}
	// a fast server may answer before the send is acknowledged
	attempt.authSent = true
	attempt.cancelTimeout = state.actor.scheduler.RequestOnce(state.actor.settings.AuthTimeout, ctx.Self(), authTimeout{attempt: attempt.id})
	PipeResultToSelf(ctx, ctx.RequestFuture(state.actor.transport, domain.SendFrameRequest{Frame: frame}, 2*time.Second), func(msg any, err error) any {
		if err == nil {
			if resp, ok := msg.(domain.SendFrameResponse); ok {
				err = resp.GetResponseError()
			}
		}
		return sendOutcome{attempt: attempt.id, err: err}
	})
}

func (state SessionAuthenticatingState) succeed(ctx actor.Context) {
	act := state.actor
	attempt := state.attempt
	state.stopTimeout()

	data := attempt.data
	act.lastSuccessful = &data
	if act.store != nil {
		if err := act.store.SaveLastSession(data); err != nil {
			act.logger.Error("session@authenticating could not persist session", zap.Error(err))
		}
	}
	act.metrics.AuthSucceeded()
	act.logger.Info("session@authenticating authenticated", zap.String("address", data.Address()))

	act.hubs.SessionStates.Publish(domain.SESSION_STATE_AUTHENTICATED)
	state.respond(ctx, nil)
	if attempt.silent {
		act.scheduleStateRequest(ctx)
	}
	act.Become(SessionAuthenticatedState{actor: act})
	act.stash.UnstashAll(ctx)
}

func (state SessionAuthenticatingState) fail(ctx actor.Context, err error) {
	act := state.actor
	state.stopTimeout()
	act.metrics.AuthFailed()

	act.hubs.SessionStates.Publish(domain.SESSION_STATE_FAILED)
	act.hubs.SessionStates.Publish(domain.SESSION_STATE_IDLE)
	state.respond(ctx, err)
	act.Become(SessionIdleState{actor: act})
	act.stash.UnstashAll(ctx)
}

func (state SessionAuthenticatingState) stopTimeout() {
	if state.attempt.cancelTimeout != nil {
		state.attempt.cancelTimeout()
		state.attempt.cancelTimeout = nil
	}
}

func (state SessionAuthenticatingState) respond(ctx actor.Context, err error) {
	if state.attempt.replyTo != nil {
		ctx.Send(state.attempt.replyTo, domain.LoginResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
	}
}

// Authenticated state

type SessionAuthenticatedState struct {
	ActorState
	actor *SessionActor
}

func (state SessionAuthenticatedState) Name() string {
	return "authenticated"
}

func (state SessionAuthenticatedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.LoginRequest:
		state.actor.logger.Debug("session@authenticated LoginRequest", zap.String("id", msg.Id))
		state.actor.beginLogin(ctx, msg.Data, msg.Id, ForRequest(msg).ReplyTo(ctx), false)
	case domain.ConnectionStateChanged:
		if msg.State == domain.CONNECTION_STATE_DISCONNECTED || msg.State == domain.CONNECTION_STATE_FAILED {
			state.actor.logger.Info("session@authenticated connection lost")
			state.actor.hubs.SessionStates.Publish(domain.SESSION_STATE_IDLE)
			state.actor.Become(SessionIdleState{actor: state.actor})
		}
	case domain.AuthResultReceived, domain.CancelLoginRequest, connectOutcome, sendOutcome, authTimeout:
	default:
		state.actor.logger.Debug("session@authenticated unhandled", TypeField(msg))
	}
}

func SessionSettingsFromConfig(cfg config.Config) SessionSettings {
	return SessionSettings{
		ClientName:        cfg.Client.Name,
		ConnectTimeout:    cfg.Server.ConnectTimeout(),
		AuthTimeout:       cfg.Session.AuthTimeout(),
		RequestStateDelay: cfg.Session.RequestStateDelay(),
	}
}
