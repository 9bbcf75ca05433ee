// Package api carries the HTTP surface: routing, middleware, controllers,
// and response envelopes.
package api

import (
	"net/http"
	"time"

	"github.com/notewellhq/notewell-backend/pkg/config"
)

// NewServer wraps the handler in an http.Server with sane timeouts.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
