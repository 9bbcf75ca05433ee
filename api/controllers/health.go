package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/notewellhq/notewell-backend/api/responses"
	"github.com/notewellhq/notewell-backend/pkg/config"
	pkgerrors "github.com/notewellhq/notewell-backend/pkg/errors"
	"github.com/notewellhq/notewell-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is the health-check surface every backing service exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Notewell-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every backing service; any failure returns 503 with the
// failing dependencies named.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Notewell-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failing := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failing[name] = err.Error()
			}
		}

		if len(failing) > 0 {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failing)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
