package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type taskResult struct {
	value string
	err   error
}

type taskActor struct {
	fn      func() (*taskResult, error)
	timeout time.Duration
	results chan taskResult
}

func (a *taskActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		NewBackgroundTask(ctx, a.fn).
			WithTimeout(a.timeout).
			Recover(func(err error) taskResult { return taskResult{err: err} }).
			PipeTo(ctx.Self())
	case taskResult:
		a.results <- msg
	}
}

func runTask(t *testing.T, fn func() (*taskResult, error), timeout time.Duration) taskResult {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	results := make(chan taskResult, 1)
	as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &taskActor{fn: fn, timeout: timeout, results: results}
	}))
	select {
	case res := <-results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("task result not piped")
	}
	return taskResult{}
}

func TestBackgroundTaskPipesValue(t *testing.T) {
	res := runTask(t, func() (*taskResult, error) {
		return &taskResult{value: "ok"}, nil
	}, time.Second)
	assert.Equal(t, "ok", res.value)
	assert.NoError(t, res.err)
}

func TestBackgroundTaskRecoversError(t *testing.T) {
	boom := errors.New("boom")
	res := runTask(t, func() (*taskResult, error) {
		return nil, boom
	}, time.Second)
	assert.ErrorIs(t, res.err, boom)
}

func TestBackgroundTaskRecoversTimeout(t *testing.T) {
	res := runTask(t, func() (*taskResult, error) {
		time.Sleep(500 * time.Millisecond)
		return &taskResult{value: "late"}, nil
	}, 50*time.Millisecond)
	assert.Error(t, res.err)
	assert.Empty(t, res.value)
}
