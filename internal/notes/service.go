package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
)

// Store is the slice of the repository the service consumes.
type Store interface {
	EnsureDedupIndex(ctx context.Context, ownerID string) error
	GetDedupIndex(ctx context.Context, ownerID string) (map[string]string, error)
	DeleteDedupIndex(ctx context.Context, ownerID string) error
	CreateNoteWithIndex(ctx context.Context, note Note) error
	GetNote(ctx context.Context, ownerID, noteID string) (*Note, error)
	BatchGetNotes(ctx context.Context, ownerID string, noteIDs []string) (map[string]Note, error)
	UpdateNote(ctx context.Context, ownerID, noteID string, fields UpdateNoteFields, modifiedAt string) (*Note, error)
	DeleteNotesBatch(ctx context.Context, ownerID string, noteIDs []string) ([]string, error)
	QueryPage(ctx context.Context, ownerID string, limit int32, cursor *pagination.Cursor) ([]Note, *pagination.Cursor, error)
	QueryIDsPage(ctx context.Context, ownerID string, limit int32) ([]Note, error)
	AddMedias(ctx context.Context, ownerID, noteID string, medias map[string]NoteMedia, modifiedAt string) error
	SetMediaStatus(ctx context.Context, ownerID, noteID string, mediaIDs []string, status string, modifiedAt string) error
	RemoveMedias(ctx context.Context, ownerID, noteID string, mediaIDs []string, modifiedAt string) error
}

// ObjectURLRenderer renders the canonical public URL of a stored key.
type ObjectURLRenderer interface {
	PublicURL(key string) string
}

// Service is the consistency layer over the note store.
type Service struct {
	store Store
	urls  ObjectURLRenderer
	log   *logger.Logger
	cfg   config.NotesConfig
	now   func() time.Time
}

func NewService(store Store, urls ObjectURLRenderer, log *logger.Logger, cfg config.NotesConfig) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("note store is required")
	}
	if urls == nil {
		return nil, fmt.Errorf("object url renderer is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.MaxMediasPerNote <= 0 {
		return nil, fmt.Errorf("max medias per note must be positive")
	}
	if cfg.DeletePageSize <= 0 {
		return nil, fmt.Errorf("delete page size must be positive")
	}
	return &Service{
		store: store,
		urls:  urls,
		log:   log,
		cfg:   cfg,
		now:   time.Now,
	}, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CreateNotes creates a batch of notes idempotently by global id. Inputs
// whose global id already maps to a note resolve to that note unchanged;
// duplicates within the batch resolve to the first winner. A per-input
// failure annotates that input's result without failing its siblings.
func (s *Service) CreateNotes(ctx context.Context, ownerID string, inputs []CreateNoteInput) ([]CreateNoteResult, error) {
	if ownerID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id is required")
	}
	if len(inputs) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one note input is required")
	}
	for _, in := range inputs {
		if in.GlobalID == "" {
			return nil, errors.New(errors.CodeValidation, "global_id is required on every note input")
		}
	}

	if err := s.store.EnsureDedupIndex(ctx, ownerID); err != nil {
		return nil, err
	}
	index, err := s.store.GetDedupIndex(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// One winner per global id: the dedup index first, then the earliest
	// occurrence within this batch.
	existingIDs := make([]string, 0, len(inputs))
	winners := map[string]int{}
	for i, in := range inputs {
		if noteID, ok := index[in.GlobalID]; ok {
			if _, seen := winners[in.GlobalID]; !seen {
				existingIDs = append(existingIDs, noteID)
				winners[in.GlobalID] = -1
			}
			continue
		}
		if _, seen := winners[in.GlobalID]; !seen {
			winners[in.GlobalID] = i
		}
	}

	existing, err := s.store.BatchGetNotes(ctx, ownerID, existingIDs)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]CreateNoteResult, len(winners))
	for globalID, winnerIdx := range winners {
		if winnerIdx == -1 {
			noteID := index[globalID]
			result := CreateNoteResult{GlobalID: globalID, Existing: true}
			if note, ok := existing[noteID]; ok {
				result.Note = &note
			} else {
				// Index points at a note that no longer exists. Treated as
				// a per-input failure, not a batch failure.
				result.Err = errors.New(errors.CodeNotFound, "indexed note missing")
			}
			resolved[globalID] = result
			continue
		}

		in := inputs[winnerIdx]
		now := timestamp(s.now())
		note := Note{
			OwnerID:           ownerID,
			NoteID:            uuid.NewString(),
			GlobalID:          in.GlobalID,
			Title:             in.Title,
			Content:           in.Content,
			ShortContent:      shortContent(in.Content),
			TimestampCreated:  now,
			TimestampModified: now,
			Medias:            map[string]NoteMedia{},
		}
		if err := s.store.CreateNoteWithIndex(ctx, note); err != nil {
			s.log.Warn(s.log.WithFields(ctx, map[string]any{
				"owner_id":  ownerID,
				"global_id": in.GlobalID,
			}), "note create failed")
			resolved[in.GlobalID] = CreateNoteResult{GlobalID: in.GlobalID, Err: err}
			continue
		}
		resolved[in.GlobalID] = CreateNoteResult{GlobalID: in.GlobalID, Note: &note}
	}

	results := make([]CreateNoteResult, len(inputs))
	for i, in := range inputs {
		result := resolved[in.GlobalID]
		if winnerIdx, ok := winners[in.GlobalID]; ok && winnerIdx != -1 && winnerIdx != i && result.Err == nil {
			// Batch-internal duplicate resolving to this batch's winner.
			result.Existing = true
		}
		results[i] = result
	}
	return results, nil
}

// GetNotes returns one newest-first page of the owner's notes.
func (s *Service) GetNotes(ctx context.Context, ownerID string, params pagination.Params) (*NotePage, error) {
	if ownerID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id is required")
	}

	cursor, err := pagination.ParseCursor(params.PageMark)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "invalid page mark")
	}
	if cursor != nil && cursor.OwnerID != ownerID {
		return nil, errors.New(errors.CodeValidation, "page mark does not belong to this owner")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	items, next, err := s.store.QueryPage(ctx, ownerID, int32(limit), cursor)
	if err != nil {
		return nil, err
	}

	page := &NotePage{Notes: items}
	if next != nil {
		page.PageMark = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// UpdateSingleNote applies a conditional update, failing distinguishably with
// not-found when the (owner, note) pair does not exist.
func (s *Service) UpdateSingleNote(ctx context.Context, ownerID, noteID string, fields UpdateNoteFields) (*Note, error) {
	if ownerID == "" || noteID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id and note id are required")
	}
	if fields.Title == nil && fields.Content == nil {
		return nil, errors.New(errors.CodeValidation, "at least one field must be set")
	}
	return s.store.UpdateNote(ctx, ownerID, noteID, fields, timestamp(s.now()))
}

// DeleteMultipleNotes removes the given notes best-effort and returns the
// subset that could not be deleted after internal retries.
func (s *Service) DeleteMultipleNotes(ctx context.Context, ownerID string, noteIDs []string) ([]string, error) {
	if ownerID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id is required")
	}
	if len(noteIDs) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one note id is required")
	}
	failed, err := s.store.DeleteNotesBatch(ctx, ownerID, noteIDs)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		s.log.Warn(s.log.WithFields(ctx, map[string]any{
			"owner_id":     ownerID,
			"failed_count": len(failed),
		}), "notes left undeleted after retries")
	}
	return failed, nil
}

// ListNotePage returns one bounded page of the owner's notes off the base
// table. The user delete cascade drains an owner by calling this until it
// reports empty.
func (s *Service) ListNotePage(ctx context.Context, ownerID string) ([]Note, error) {
	if ownerID == "" {
		return nil, errors.New(errors.CodeValidation, "owner id is required")
	}
	return s.store.QueryIDsPage(ctx, ownerID, int32(s.cfg.DeletePageSize))
}

// DeleteDedupIndex drops the owner's dedup index item.
func (s *Service) DeleteDedupIndex(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return errors.New(errors.CodeValidation, "owner id is required")
	}
	return s.store.DeleteDedupIndex(ctx, ownerID)
}
