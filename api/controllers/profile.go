package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/api/validators"
	"github.com/notewellhq/notewell-backend/internal/notes"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

// IdentityService is the user-record slice the profile routes drive.
type IdentityService interface {
	ProfilePhoto(ctx context.Context, userID string) (string, error)
	ClearProfilePhoto(ctx context.Context, userID string) error
}

type uploadPhotoRequest struct {
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

type uploadPhotoResponse struct {
	UploadURL string `json:"upload_url"`
	Method    string `json:"method"`
	Key       string `json:"key"`
}

// UploadProfilePhoto issues a presigned PUT for a fresh photo key. The photo
// lands on the user record once the object-created event confirms the upload.
func UploadProfilePhoto(uploads UploadURLIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		var payload uploadPhotoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := notes.ProfilePhotoKey(ownerID, uuid.NewString())
		uploadURL, err := uploads.IssueUploadURL(r.Context(), key, payload.ContentType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue upload url"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, uploadPhotoResponse{
			UploadURL: uploadURL,
			Method:    http.MethodPut,
			Key:       key,
		})
	}
}

// DeleteProfilePhoto clears the photo attribute and hands the stored object
// to the queue worker.
func DeleteProfilePhoto(identity IdentityService, q Enqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		photoURL, err := identity.ProfilePhoto(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if photoURL == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no profile photo set"))
			return
		}

		if err := identity.ClearProfilePhoto(r.Context(), ownerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if key := photoKeyFromURL(photoURL); key != "" {
			if err := enqueueCleanup(r.Context(), q, enums.EventDeleteProfilePhoto, map[string]any{"keys": []string{key}}); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// photoKeyFromURL recovers the object key from a stored public URL.
func photoKeyFromURL(photoURL string) string {
	idx := strings.Index(photoURL, "profile-photos/")
	if idx < 0 {
		return ""
	}
	return photoURL[idx:]
}
