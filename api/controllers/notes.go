package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/api/validators"
	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/pagination"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// NotesService is the consistency-layer slice the note routes drive.
type NotesService interface {
	CreateNotes(ctx context.Context, ownerID string, inputs []notes.CreateNoteInput) ([]notes.CreateNoteResult, error)
	GetNotes(ctx context.Context, ownerID string, params pagination.Params) (*notes.NotePage, error)
	UpdateSingleNote(ctx context.Context, ownerID, noteID string, fields notes.UpdateNoteFields) (*notes.Note, error)
	DeleteMultipleNotes(ctx context.Context, ownerID string, noteIDs []string) ([]string, error)
}

// Enqueuer publishes cleanup messages produced by API mutations.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

type createNotesRequest struct {
	Notes []createNoteEntry `json:"notes" validate:"required,min=1,max=25,dive"`
}

type createNoteEntry struct {
	GlobalID string `json:"global_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content"`
}

type createNoteResponse struct {
	GlobalID string      `json:"global_id"`
	Existing bool        `json:"existing"`
	Note     *notes.Note `json:"note,omitempty"`
	Error    *itemError  `json:"error,omitempty"`
}

type itemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateNotes handles the idempotent batch create. Per-item failures come
// back annotated on their entry; siblings are unaffected.
func CreateNotes(svc NotesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		var payload createNotesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]notes.CreateNoteInput, 0, len(payload.Notes))
		for _, entry := range payload.Notes {
			inputs = append(inputs, notes.CreateNoteInput{
				GlobalID: entry.GlobalID,
				Title:    entry.Title,
				Content:  entry.Content,
			})
		}

		results, err := svc.CreateNotes(r.Context(), ownerID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]createNoteResponse, 0, len(results))
		for _, result := range results {
			entry := createNoteResponse{
				GlobalID: result.GlobalID,
				Existing: result.Existing,
				Note:     result.Note,
			}
			if result.Err != nil {
				typed := pkgerrors.As(result.Err)
				if typed == nil {
					typed = pkgerrors.Wrap(pkgerrors.CodeInternal, result.Err, "create note")
				}
				entry.Error = &itemError{Code: string(typed.Code()), Message: typed.Message()}
			}
			out = append(out, entry)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"results": out})
	}
}

// GetNotes returns a newest-first page with an opaque page mark.
func GetNotes(svc NotesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.GetNotes(r.Context(), ownerID, pagination.Params{
			Limit:    limit,
			PageMark: validators.ParseQueryString(r, "page_mark"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type updateNoteRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content"`
}

// UpdateNote applies a partial update to one note.
func UpdateNote(svc NotesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		noteID := chi.URLParam(r, "noteId")
		if noteID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "note id is required"))
			return
		}

		var payload updateNoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		note, err := svc.UpdateSingleNote(r.Context(), ownerID, noteID, notes.UpdateNoteFields{
			Title:   payload.Title,
			Content: payload.Content,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, note)
	}
}

type deleteNotesRequest struct {
	NoteIDs []string `json:"note_ids" validate:"required,min=1,max=25,dive,required"`
}

type deleteNotesResponse struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// DeleteNotes removes the note items and hands object cleanup to the queue
// worker as a prefix sweep over the deleted notes.
func DeleteNotes(svc NotesService, q Enqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		var payload deleteNotesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		failed, err := svc.DeleteMultipleNotes(r.Context(), ownerID, payload.NoteIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		failedSet := map[string]struct{}{}
		for _, id := range failed {
			failedSet[id] = struct{}{}
		}
		var deleted []string
		var prefixes []string
		for _, id := range payload.NoteIDs {
			if _, ok := failedSet[id]; ok {
				continue
			}
			deleted = append(deleted, id)
			prefixes = append(prefixes, notes.NoteMediaPrefix(ownerID, id))
		}

		if len(prefixes) > 0 {
			if err := enqueueCleanup(r.Context(), q, enums.EventDeleteNotes, map[string]any{"prefixes": prefixes}); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, deleteNotesResponse{Deleted: deleted, Failed: failed})
	}
}

// enqueueCleanup publishes an origin-source cleanup message.
func enqueueCleanup(ctx context.Context, q Enqueuer, event enums.EventType, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cleanup message")
	}
	msg := queue.Message{
		Source: enums.SourceNoteService,
		Event:  event,
		Body:   payload,
	}
	if err := q.Enqueue(ctx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue cleanup message")
	}
	return nil
}
