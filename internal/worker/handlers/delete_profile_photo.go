package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// DeleteProfilePhotoHandler removes profile photo objects. Reattempt
// deliveries work through their keys in fixed-size sub-batches with a short
// pause between rounds to avoid bursting the object store.
type DeleteProfilePhotoHandler struct {
	policy     Policy
	store      ObjectStore
	batchSize  int
	batchDelay time.Duration
}

func NewDeleteProfilePhotoHandler(policy Policy, store ObjectStore, batchSize int, batchDelay time.Duration) (*DeleteProfilePhotoHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	return &DeleteProfilePhotoHandler{
		policy:     policy,
		store:      store,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}, nil
}

func (h *DeleteProfilePhotoHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome

	for _, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			continue
		}

		var body DeleteProfilePhotoBody
		if err := json.Unmarshal(msg.Body, &body); err != nil || len(body.Keys) == 0 {
			h.policy.Log.Warn(ctx, "dropping profile photo delete with unreadable body")
			outcome.Ack(msg)
			continue
		}

		undeleted, err := h.deleteKeys(ctx, msg, body.Keys)
		if err != nil {
			h.policy.resolveFailure(ctx, msg, err, &outcome)
			continue
		}

		outcome.Ack(msg)
		if len(undeleted) > 0 {
			retry, err := repackage(enums.EventDeleteProfilePhoto, msg.Attempt, DeleteProfilePhotoBody{Keys: undeleted})
			if err != nil {
				return worker.Outcome{}, err
			}
			h.policy.Log.Warn(h.policy.Log.WithFields(ctx, map[string]any{
				"undeleted_count": len(undeleted),
			}), "profile photo cleanup left keys undeleted, requeueing remainder")
			outcome.Retry = append(outcome.Retry, retry)
		}
	}
	return outcome, nil
}

// deleteKeys removes the keys, throttling reattempt deliveries into
// sub-batches with an inter-round delay.
func (h *DeleteProfilePhotoHandler) deleteKeys(ctx context.Context, msg queue.Message, keys []string) ([]string, error) {
	if msg.Source != enums.SourceQueueService {
		return h.store.DeleteBatch(ctx, keys)
	}

	var undeleted []string
	for start := 0; start < len(keys); start += h.batchSize {
		if start > 0 && h.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.batchDelay):
			}
		}
		end := min(start+h.batchSize, len(keys))
		failed, err := h.store.DeleteBatch(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		undeleted = append(undeleted, failed...)
	}
	return undeleted, nil
}
