package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// DeleteNotesHandler sweeps every object-store key under the prefixes of
// deleted notes. Keys left undeleted are repackaged as a concrete media
// delete so continued work targets keys, not prefixes.
type DeleteNotesHandler struct {
	policy Policy
	store  ObjectStore
}

func NewDeleteNotesHandler(policy Policy, store ObjectStore) (*DeleteNotesHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &DeleteNotesHandler{policy: policy, store: store}, nil
}

func (h *DeleteNotesHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome

	for _, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			continue
		}

		var body DeleteNotesBody
		if err := json.Unmarshal(msg.Body, &body); err != nil || len(body.Prefixes) == 0 {
			h.policy.Log.Warn(ctx, "dropping note cleanup with unreadable body")
			outcome.Ack(msg)
			continue
		}

		var undeleted []string
		var failedErr error
		for _, prefix := range body.Prefixes {
			failed, err := h.store.DeleteByPrefix(ctx, prefix)
			if err != nil {
				failedErr = err
				break
			}
			undeleted = append(undeleted, failed...)
		}
		if failedErr != nil {
			h.policy.resolveFailure(ctx, msg, failedErr, &outcome)
			continue
		}

		outcome.Ack(msg)
		if len(undeleted) > 0 {
			retry, err := repackage(enums.EventDeleteMedias, msg.Attempt, DeleteMediasBody{Keys: undeleted})
			if err != nil {
				return worker.Outcome{}, err
			}
			h.policy.Log.Warn(h.policy.Log.WithFields(ctx, map[string]any{
				"undeleted_count": len(undeleted),
			}), "note cleanup left keys undeleted, requeueing remainder")
			outcome.Retry = append(outcome.Retry, retry)
		}
	}
	return outcome, nil
}
