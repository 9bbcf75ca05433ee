package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/api/validators"
	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

// MediasService is the consistency-layer slice the media routes drive.
type MediasService interface {
	AddNoteMedias(ctx context.Context, ownerID, noteID string, inputs []notes.MediaInput) (*notes.AddMediasResult, error)
	RemoveNoteMedias(ctx context.Context, ownerID, noteID string, mediaIDs []string) ([]string, error)
}

// UploadURLIssuer presigns direct-to-bucket PUT uploads.
type UploadURLIssuer interface {
	IssueUploadURL(ctx context.Context, key string, contentType string) (string, error)
}

type addMediasRequest struct {
	Medias []addMediaEntry `json:"medias" validate:"required,min=1,max=10,dive"`
}

type addMediaEntry struct {
	GlobalID string `json:"global_id" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Size     int64  `json:"size" validate:"required,gt=0"`
}

type addMediaResponse struct {
	MediaID   string            `json:"media_id"`
	GlobalID  string            `json:"global_id"`
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Status    enums.MediaStatus `json:"status"`
	Existing  bool              `json:"existing"`
	UploadURL string            `json:"upload_url,omitempty"`
}

// AddMedias registers media entries on a note and returns a presigned upload
// URL per freshly added entry. Entries already present come back without one;
// their object either exists or its original URL is still valid.
func AddMedias(svc MediasService, uploads UploadURLIssuer, logg *logger.Logger) http.HandlerFunc {
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

		var payload addMediasRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inputs := make([]notes.MediaInput, 0, len(payload.Medias))
		typeByGlobalID := make(map[string]string, len(payload.Medias))
		for _, entry := range payload.Medias {
			inputs = append(inputs, notes.MediaInput{
				GlobalID: entry.GlobalID,
				Type:     entry.Type,
				Size:     entry.Size,
			})
			typeByGlobalID[entry.GlobalID] = entry.Type
		}

		result, err := svc.AddNoteMedias(r.Context(), ownerID, noteID, inputs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]addMediaResponse, 0, len(result.Added)+len(result.Existing))
		for mediaID, media := range result.Added {
			uploadURL, err := uploads.IssueUploadURL(r.Context(), media.Key, typeByGlobalID[media.GlobalID])
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue upload url"))
				return
			}
			out = append(out, addMediaResponse{
				MediaID:   mediaID,
				GlobalID:  media.GlobalID,
				Key:       media.Key,
				URL:       media.URL,
				Status:    media.Status,
				UploadURL: uploadURL,
			})
		}
		for mediaID, media := range result.Existing {
			out = append(out, addMediaResponse{
				MediaID:  mediaID,
				GlobalID: media.GlobalID,
				Key:      media.Key,
				URL:      media.URL,
				Status:   media.Status,
				Existing: true,
			})
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"medias": out})
	}
}

type removeMediasRequest struct {
	MediaIDs []string `json:"media_ids" validate:"required,min=1,max=10,dive,required"`
}

// RemoveMedias detaches media entries from a note and hands their objects to
// the queue worker for deletion.
func RemoveMedias(svc MediasService, q Enqueuer, logg *logger.Logger) http.HandlerFunc {
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

		var payload removeMediasRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		keys, err := svc.RemoveNoteMedias(r.Context(), ownerID, noteID, payload.MediaIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if len(keys) > 0 {
			if err := enqueueCleanup(r.Context(), q, enums.EventDeleteMedias, map[string]any{"keys": keys}); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, map[string]any{"removed": len(keys)})
	}
}
