package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notewellhq/notewell-backend/api/controllers"
	"github.com/notewellhq/notewell-backend/api/middleware"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/redis"
)

// NoteService is the full consistency-layer surface the API consumes.
type NoteService interface {
	controllers.NotesService
	controllers.MediasService
}

// Deps bundles everything the router wires into its handlers.
type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	Redis    *redis.Client
	Notes    NoteService
	Uploads  controllers.UploadURLIssuer
	Identity controllers.IdentityService
	Queue    controllers.Enqueuer
	Health   map[string]controllers.Pinger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Log

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})

	var idempotencyStore redis.IdempotencyStore
	var limiter middleware.RateLimiter
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiter = deps.Redis
	}
	idem := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.AuthRateLimit, limiter, logg))

		r.With(idem).Post("/notes", controllers.CreateNotes(deps.Notes, logg))
		r.Get("/notes", controllers.GetNotes(deps.Notes, logg))
		r.With(idem).Delete("/notes", controllers.DeleteNotes(deps.Notes, deps.Queue, logg))
		r.Patch("/notes/{noteId}", controllers.UpdateNote(deps.Notes, logg))
		r.With(idem).Post("/notes/{noteId}/medias", controllers.AddMedias(deps.Notes, deps.Uploads, logg))
		r.With(idem).Delete("/notes/{noteId}/medias", controllers.RemoveMedias(deps.Notes, deps.Queue, logg))

		r.With(idem).Post("/profile/photo", controllers.UploadProfilePhoto(deps.Uploads, logg))
		r.With(idem).Delete("/profile/photo", controllers.DeleteProfilePhoto(deps.Identity, deps.Queue, logg))

		r.With(idem).Delete("/users/me", controllers.DeleteAccount(deps.Queue, logg))
	})

	return r
}
