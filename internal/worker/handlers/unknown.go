package handlers

import (
	"context"

	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// UnknownHandler requeues unrecognized traffic instead of silently dropping
// it, on the assumption that a future deploy will understand it. The shared
// exhaustion policy still bounds the loop.
type UnknownHandler struct {
	policy Policy
}

func NewUnknownHandler(policy Policy) *UnknownHandler {
	return &UnknownHandler{policy: policy}
}

func (h *UnknownHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome
	for _, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			continue
		}
		h.policy.Log.Warn(h.policy.Log.WithFields(ctx, map[string]any{
			"source_type": msg.Source.String(),
			"event_type":  msg.Event.String(),
			"attempt":     msg.Attempt,
		}), "unrecognized message, requeueing")
		outcome.RetryLater(msg)
	}
	return outcome, nil
}
