package service

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/internal/core/events"
	"github.com/berfenger/panelsense/internal/core/stream"
	"github.com/berfenger/panelsense/internal/metric"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_REQUEST_TIMEOUT = 2 * time.Second

// CommandDispatcher turns entity commands into frames queued on the transport.
type CommandDispatcher struct {
	root      *actor.RootContext
	transport *actor.PID
	states    *stream.Stream[domain.ConnectionState]
	metrics   *metric.Metrics
	logger    *zap.Logger
}

func NewCommandDispatcher(root *actor.RootContext, transport *actor.PID, states *stream.Stream[domain.ConnectionState],
	metrics *metric.Metrics, logger *zap.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		root:      root,
		transport: transport,
		states:    states,
		metrics:   metrics,
		logger:    logger.With(zap.String("service", "dispatcher")),
	}
}

// Send returns once the command is queued for writing. Nothing is written unless
// the connection is up.
func (d *CommandDispatcher) Send(ctx context.Context, cmd domain.EntityCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if state, _ := d.states.Latest(); state != domain.CONNECTION_STATE_CONNECTED {
		d.logger.Debug("command rejected, not connected", zap.String("entity", cmd.EntityId), zap.Stringer("state", state))
		return domain.ErrNotConnected
	}
	frame, err := panelsense_ws.Encode(events.CommandToMessage(cmd))
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := d.sendFrame(ctx, frame); err != nil {
		return err
	}
	d.metrics.CommandsSent.Inc()
	d.logger.Debug("command sent", zap.String("entity", cmd.EntityId), zap.String("action", string(cmd.Action)))
	return nil
}

func (d *CommandDispatcher) sendFrame(ctx context.Context, frame []byte) error {
	res, err := request(ctx, d.root, d.transport, domain.SendFrameRequest{Frame: frame}, DEFAULT_REQUEST_TIMEOUT)
	if err != nil {
		return err
	}
	if resp, ok := res.(domain.SendFrameResponse); ok && resp.HasResponseError() {
		return resp.GetResponseError()
	}
	return nil
}

// request waits for the actor's answer or for ctx, whichever comes first.
func request(ctx context.Context, root *actor.RootContext, pid *actor.PID, msg any, timeout time.Duration) (any, error) {
	future := root.RequestFuture(pid, msg, timeout)
	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := future.Result()
		done <- result{value: value, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}
