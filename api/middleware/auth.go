package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/notewellhq/notewell-backend/api/responses"
	pkgauth "github.com/notewellhq/notewell-backend/pkg/auth"
	"github.com/notewellhq/notewell-backend/pkg/config"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// authenticated owner id.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.OwnerID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing owner id"))
				return
			}

			ownerID := claims.OwnerID.String()
			ctx := WithOwnerID(r.Context(), ownerID)
			if claims.ID != "" {
				ctx = context.WithValue(ctx, ctxTokenID, claims.ID)
			}
			if logg != nil {
				ctx = logg.WithOwnerID(ctx, ownerID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
