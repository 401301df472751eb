package actorutil

import (
	"github.com/berfenger/panelsense/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

type forRequest struct {
	req domain.ActorRequest
}

type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

// Respond answers the explicit reply-to ref, then the sender. Fire-and-forget
// requests have neither and get no response.
func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if replyTo := r.ReplyTo(ctx); replyTo != nil {
		ctx.Send(replyTo, resp)
	}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if replyTo := r.req.ReplyTo(); replyTo != nil {
		return replyTo
	}
	return ctx.Sender()
}
