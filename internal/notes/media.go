package notes

import (
	"context"

	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/errors"
)

// AddNoteMedias attaches new media entries to a note under the per-note cap.
// Inputs whose media id is already present resolve to the stored entry; the
// whole call is rejected when current plus new would exceed the cap, leaving
// the stored map untouched. New entries start NOT_AVAILABLE until the object
// store confirms the upload.
func (s *Service) AddNoteMedias(ctx context.Context, ownerID, noteID string, inputs []MediaInput) (*AddMediasResult, error) {
	if ownerID == "" || noteID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id and note id are required")
	}
	if len(inputs) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one media input is required")
	}
	for _, in := range inputs {
		if in.GlobalID == "" {
			return nil, errors.New(errors.CodeValidation, "global_id is required on every media input")
		}
	}

	note, err := s.store.GetNote(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	result := &AddMediasResult{
		Added:    map[string]NoteMedia{},
		Existing: map[string]NoteMedia{},
	}
	for _, in := range inputs {
		mediaID := MediaID(in.GlobalID)
		if current, ok := note.Medias[mediaID]; ok {
			result.Existing[mediaID] = current
			continue
		}
		if _, ok := result.Added[mediaID]; ok {
			continue
		}
		key := NoteMediaKey(ownerID, noteID, mediaID)
		result.Added[mediaID] = NoteMedia{
			Key:      key,
			URL:      s.urls.PublicURL(key),
			Type:     in.Type,
			Size:     in.Size,
			Status:   enums.MediaStatusNotAvailable,
			GlobalID: in.GlobalID,
		}
	}

	if len(result.Added) == 0 {
		return result, nil
	}
	if len(note.Medias)+len(result.Added) > s.cfg.MaxMediasPerNote {
		return nil, errors.New(errors.CodeValidation, "media limit for this note exceeded")
	}

	if err := s.store.AddMedias(ctx, ownerID, noteID, result.Added, timestamp(s.now())); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateMediaStatus flips the status of the given media entries. A condition
// miss on the note or an entry surfaces as a distinct not-found.
func (s *Service) UpdateMediaStatus(ctx context.Context, ownerID, noteID string, mediaIDs []string, status enums.MediaStatus) error {
	if ownerID == "" || noteID == "" {
		return errors.New(errors.CodeValidation, "owner id and note id are required")
	}
	if len(mediaIDs) == 0 {
		return errors.New(errors.CodeValidation, "at least one media id is required")
	}
	if !status.IsValid() {
		return errors.New(errors.CodeValidation, "invalid media status")
	}
	return s.store.SetMediaStatus(ctx, ownerID, noteID, mediaIDs, status.String(), timestamp(s.now()))
}

// RemoveNoteMedias detaches media entries from a note and returns the object
// store keys of the removed entries so the caller can schedule cleanup.
func (s *Service) RemoveNoteMedias(ctx context.Context, ownerID, noteID string, mediaIDs []string) ([]string, error) {
	if ownerID == "" || noteID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id and note id are required")
	}
	if len(mediaIDs) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one media id is required")
	}

	note, err := s.store.GetNote(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	present := make([]string, 0, len(mediaIDs))
	keys := make([]string, 0, len(mediaIDs))
	for _, mediaID := range mediaIDs {
		if media, ok := note.Medias[mediaID]; ok {
			present = append(present, mediaID)
			keys = append(keys, media.Key)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}

	if err := s.store.RemoveMedias(ctx, ownerID, noteID, present, timestamp(s.now())); err != nil {
		return nil, err
	}
	return keys, nil
}
