package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// DeleteUserHandler cascades a user deletion: page through the user's notes,
// delete each page's media objects and note items, and only requeue the
// whole cascade when a page reports unsuccessful deletions. Redelivery for an
// already-drained user acknowledges after a single empty page.
type DeleteUserHandler struct {
	policy Policy
	notes  NoteCascader
	store  ObjectStore
}

func NewDeleteUserHandler(policy Policy, cascader NoteCascader, store ObjectStore) (*DeleteUserHandler, error) {
	if cascader == nil {
		return nil, fmt.Errorf("note cascader is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &DeleteUserHandler{policy: policy, notes: cascader, store: store}, nil
}

func (h *DeleteUserHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome

	for _, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			continue
		}

		var body DeleteUserBody
		if err := json.Unmarshal(msg.Body, &body); err != nil || body.UserID == "" {
			h.policy.Log.Warn(ctx, "dropping user delete with unreadable body")
			outcome.Ack(msg)
			continue
		}

		if err := h.drainOwner(ctx, body.UserID); err != nil {
			h.policy.resolveFailure(ctx, msg, err, &outcome)
			continue
		}
		outcome.Ack(msg)
	}
	return outcome, nil
}

// drainOwner deletes the owner's notes page by page. A page that cannot be
// fully deleted stops the cascade with the error so the message requeues.
func (h *DeleteUserHandler) drainOwner(ctx context.Context, ownerID string) error {
	for {
		page, err := h.notes.ListNotePage(ctx, ownerID)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return h.notes.DeleteDedupIndex(ctx, ownerID)
		}

		noteIDs := make([]string, 0, len(page))
		var mediaKeys []string
		for _, note := range page {
			noteIDs = append(noteIDs, note.NoteID)
			for _, media := range note.Medias {
				mediaKeys = append(mediaKeys, media.Key)
			}
		}

		if len(mediaKeys) > 0 {
			undeleted, err := h.store.DeleteBatch(ctx, mediaKeys)
			if err != nil {
				return err
			}
			if len(undeleted) > 0 {
				return retriableCascadeError(fmt.Sprintf("%d media objects left undeleted", len(undeleted)))
			}
		}

		failed, err := h.notes.DeleteMultipleNotes(ctx, ownerID, noteIDs)
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			return retriableCascadeError(fmt.Sprintf("%d notes left undeleted", len(failed)))
		}
	}
}
