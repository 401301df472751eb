package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// PipeResultToSelf maps both outcomes of future into a message for self, so the
// receiving state can correlate it with the request that started it.
func PipeResultToSelf(ctx actor.Context, future *actor.Future, mapFn func(msg any, err error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		ctx.Send(ctx.Self(), mapFn(msg, err))
	})
}

// Forwarder returns a callback that delivers values to pid from any goroutine.
func Forwarder[T any](ctx actor.Context, pid *actor.PID, mapFn func(T) any) func(T) {
	root := ctx.ActorSystem().Root
	return func(value T) {
		root.Send(pid, mapFn(value))
	}
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.PanicLevel, zap.FatalLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

func TypeField(msg any) zap.Field {
	return zap.String("type", fmt.Sprintf("%T", msg))
}

// SupervisorDecider logs the failure of a child before restarting it.
func SupervisorDecider(logger *zap.Logger) actor.DeciderFunc {
	return func(reason any) actor.Directive {
		logger.Error("handling failure for child", zap.String("reason", fmt.Sprintf("%v", reason)))
		return actor.RestartDirective
	}
}
