package main

import (
	"net/http"

	"github.com/adat-tool/adat-api/internal/api"
	apiMiddleware "github.com/adat-tool/adat-api/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter creates the gateway router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(app.metrics.Middleware)

	api.NewAssessmentHandler(app.service, app.logger).RegisterRoutes(r)
	api.NewHealthHandler(app.clock, app.logger, app.checks...).RegisterRoutes(r)

	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	return r
}
