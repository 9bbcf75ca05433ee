package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// DeleteMediasHandler removes media objects from the object store. Keys the
// store reports as undeleted are repackaged into one self-produced message
// with the attempt counter advanced.
type DeleteMediasHandler struct {
	policy Policy
	store  ObjectStore
}

func NewDeleteMediasHandler(policy Policy, store ObjectStore) (*DeleteMediasHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &DeleteMediasHandler{policy: policy, store: store}, nil
}

func (h *DeleteMediasHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome

	var keys []string
	var survivors []queue.Message
	for _, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			continue
		}
		var body DeleteMediasBody
		if err := json.Unmarshal(msg.Body, &body); err != nil || len(body.Keys) == 0 {
			h.policy.Log.Warn(ctx, "dropping media delete with unreadable body")
			outcome.Ack(msg)
			continue
		}
		keys = append(keys, body.Keys...)
		survivors = append(survivors, msg)
	}
	if len(keys) == 0 {
		return outcome, nil
	}

	failed, err := h.store.DeleteBatch(ctx, keys)
	if err != nil {
		for _, msg := range survivors {
			h.policy.resolveFailure(ctx, msg, err, &outcome)
		}
		return outcome, nil
	}

	for _, msg := range survivors {
		outcome.Ack(msg)
	}

	if len(failed) > 0 {
		retry, err := repackage(enums.EventDeleteMedias, maxAttemptOf(survivors), DeleteMediasBody{Keys: failed})
		if err != nil {
			return worker.Outcome{}, err
		}
		h.policy.Log.Warn(h.policy.Log.WithFields(ctx, map[string]any{
			"undeleted_count": len(failed),
		}), "object store left keys undeleted, requeueing remainder")
		outcome.Retry = append(outcome.Retry, retry)
	}
	return outcome, nil
}
