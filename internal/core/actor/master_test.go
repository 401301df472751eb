package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/panelsense/internal/adapter/actor"
	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/internal/util"
	"github.com/berfenger/panelsense/internal/util/actorutil"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutedActor struct{}

func (mutedActor) Receive(actor.Context) {}

func spawnMaster(t *testing.T) (*actor.ActorSystem, *actor.PID) {
	cfg := util.LoadTestConfig()
	logger := util.TestLogger()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	metrics := metric.NewTestMetrics()
	hubs := stream.NewHubs(metrics, logger)
	server := panelsense_ws.NewTestServer()

	components := Components{
		Hubs:    hubs,
		Metrics: metrics,
		Transport: func(router *actor.PID) actor.Actor {
			return adactor.NewTransportActor(server.Dialer(), router, hubs.ConnectionStates, metrics, cfg.Server.ConnectTimeout(), logger)
		},
		Session: SessionSettingsFromConfig(cfg),
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(components, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func health(t *testing.T, as *actor.ActorSystem, pid *actor.PID) domain.ActorHealthResponse {
	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 3*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return healthResp
}

func TestMasterActor(t *testing.T) {

	as, pid := spawnMaster(t)

	healthResp := health(t, as, pid)
	assert.True(t, healthResp.Healthy, "healthy is true")
	require.Len(t, healthResp.Children, 3)
	assert.Equal(t, domain.ACTOR_ID_ROUTER, healthResp.Children[0].Id)
	assert.Equal(t, domain.ACTOR_ID_SESSION, healthResp.Children[1].Id)
	assert.Equal(t, "idle", healthResp.Children[1].State)
	assert.Equal(t, domain.ACTOR_ID_TRANSPORT, healthResp.Children[2].Id)
	assert.Equal(t, "disconnected", healthResp.Children[2].State)

	res, err := as.Root.RequestFuture(pid, domain.GetTopologyRequest{}, time.Second).Result()
	require.NoError(t, err)
	topology := res.(domain.GetTopologyResponse)
	assert.NotNil(t, topology.Transport)
	assert.NotNil(t, topology.Session)
	assert.Nil(t, topology.Reconnect)
}

func TestMasterReportsUnresponsiveComponent(t *testing.T) {

	as, pid := spawnMaster(t)

	res, err := as.Root.RequestFuture(pid, domain.AttachComponentRequest{
		Id:       "muted",
		Producer: func() actor.Actor { return mutedActor{} },
	}, time.Second).Result()
	require.NoError(t, err)
	attached := res.(domain.AttachComponentResponse)
	require.False(t, attached.HasResponseError())
	require.NotNil(t, attached.PID)

	// attaching twice returns the running instance
	res, err = as.Root.RequestFuture(pid, domain.AttachComponentRequest{
		Id:       "muted",
		Producer: func() actor.Actor { return mutedActor{} },
	}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, attached.PID.Equal(res.(domain.AttachComponentResponse).PID))

	healthResp := health(t, as, pid)
	assert.False(t, healthResp.Healthy)
	require.Len(t, healthResp.Children, 4)
	assert.Equal(t, "muted", healthResp.Children[0].Id)
	assert.Equal(t, "unresponsive", healthResp.Children[0].State)
}
