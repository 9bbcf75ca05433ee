package controllers

import (
	"net/http"

	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

// DeleteAccount kicks off the asynchronous user-delete cascade. The response
// is accepted, not completed; the queue worker drains the owner's notes and
// medias behind it.
func DeleteAccount(q Enqueuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := middleware.OwnerIDFromContext(r.Context())
		if ownerID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}

		if err := enqueueCleanup(r.Context(), q, enums.EventDeleteUser, map[string]any{"user_id": ownerID}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "deletion scheduled"})
	}
}
