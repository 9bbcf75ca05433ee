package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/internal/worker"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// CreateObjectHandler consumes object-created notifications: note media flips
// NOT_AVAILABLE to AVAILABLE, profile photos land on the user record, and
// keys nobody owns are dropped.
type CreateObjectHandler struct {
	policy   Policy
	medias   MediaStatusUpdater
	identity ProfilePhotoUpdater
	store    ObjectStore
}

func NewCreateObjectHandler(policy Policy, medias MediaStatusUpdater, identity ProfilePhotoUpdater, store ObjectStore) (*CreateObjectHandler, error) {
	if medias == nil {
		return nil, fmt.Errorf("media status updater is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("profile photo updater is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &CreateObjectHandler{policy: policy, medias: medias, identity: identity, store: store}, nil
}

// s3EventBody is the subset of the native notification carrying object keys.
type s3EventBody struct {
	Records []struct {
		S3 struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// objectKeys extracts the created object keys from a message body. Keys in
// native notifications arrive URL-encoded.
func objectKeys(body json.RawMessage) ([]string, error) {
	var event s3EventBody
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if len(event.Records) == 0 {
		return nil, fmt.Errorf("notification carries no records")
	}

	keys := make([]string, 0, len(event.Records))
	for _, record := range event.Records {
		raw := record.S3.Object.Key
		if raw == "" {
			continue
		}
		key, err := url.QueryUnescape(strings.ReplaceAll(raw, "+", "%20"))
		if err != nil {
			key = raw
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("notification carries no object keys")
	}
	return keys, nil
}

type mediaGroup struct {
	ownerID  string
	noteID   string
	mediaIDs []string
	msgIdx   map[int]struct{}
}

func (h *CreateObjectHandler) Handle(ctx context.Context, msgs []queue.Message) (worker.Outcome, error) {
	var outcome worker.Outcome

	// Partition surviving messages into note-media groups keyed by
	// (owner, note) and per-message profile photo work.
	groups := map[string]*mediaGroup{}
	resolved := make([]bool, len(msgs))

	for i, msg := range msgs {
		if h.policy.dropIfExhausted(ctx, msg, &outcome) {
			resolved[i] = true
			continue
		}

		keys, err := objectKeys(msg.Body)
		if err != nil {
			// Unparsable notifications are unrecoverable.
			h.policy.Log.Warn(ctx, "dropping unreadable object notification")
			outcome.Ack(msg)
			resolved[i] = true
			continue
		}

		for _, key := range keys {
			switch notes.ClassifyKey(key) {
			case notes.KeyKindNoteMedia:
				ownerID, noteID, mediaID, err := notes.ParseNoteMediaKey(key)
				if err != nil {
					h.policy.Log.Warn(ctx, "dropping malformed note media key")
					continue
				}
				groupKey := ownerID + "/" + noteID
				group, ok := groups[groupKey]
				if !ok {
					group = &mediaGroup{ownerID: ownerID, noteID: noteID, msgIdx: map[int]struct{}{}}
					groups[groupKey] = group
				}
				group.mediaIDs = append(group.mediaIDs, mediaID)
				group.msgIdx[i] = struct{}{}

			case notes.KeyKindProfilePhoto:
				userID, _, err := notes.ParseProfilePhotoKey(key)
				if err != nil {
					h.policy.Log.Warn(ctx, "dropping malformed profile photo key")
					continue
				}
				if err := h.identity.SetProfilePhoto(ctx, userID, h.store.PublicURL(key)); err != nil {
					h.policy.resolveFailure(ctx, msg, err, &outcome)
					resolved[i] = true
				}

			default:
				// No handler owns this key shape.
				h.policy.Log.Warn(ctx, "dropping object notification with unknown key prefix")
			}
			if resolved[i] {
				break
			}
		}
	}

	// One batched status flip per (owner, note) group. A missing note means
	// the media was already consumed by a delete; that is success.
	retrying := map[int]struct{}{}
	for _, group := range groups {
		err := h.medias.UpdateMediaStatus(ctx, group.ownerID, group.noteID, group.mediaIDs, enums.MediaStatusAvailable)
		if err != nil && errors.CodeOf(err) != errors.CodeNotFound {
			for i := range group.msgIdx {
				if !resolved[i] && errors.Retryable(err) {
					retrying[i] = struct{}{}
				}
			}
			if !errors.Retryable(err) {
				h.policy.Log.Fatal(ctx, "media status update failed terminally", err)
			}
		}
	}

	for i, msg := range msgs {
		if resolved[i] {
			continue
		}
		if _, ok := retrying[i]; ok {
			outcome.RetryLater(msg)
			continue
		}
		outcome.Ack(msg)
	}
	return outcome, nil
}
