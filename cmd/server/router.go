package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskforge/internal/api"
	apiMiddleware "github.com/phrazzld/taskforge/internal/api/middleware"
	"golang.org/x/time/rate"
)

// manualTriggerLimiter bounds how often administrators may force admission
// cycles. The burst equals the per-minute allowance.
func manualTriggerLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	taskHandler := api.NewTaskHandler(app.submitter, app.credits, app.logger)
	adminHandler := api.NewAdminHandler(app.machine, app.runner, app.credits, app.recorder, app.logger)
	triggerLimit := apiMiddleware.RateLimit(manualTriggerLimiter(app.config.Orchestrator.ManualTriggersPerMinute))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Get("/workspaces/{id}/tasks", taskHandler.ListTasks)
		r.Get("/usage", taskHandler.GetUsage)

		r.Route("/admin", func(r chi.Router) {
			r.Use(apiMiddleware.RequireAdmin)

			r.Post("/tasks/{id}/kill", adminHandler.KillTask)
			r.With(triggerLimit).Post("/admissions", adminHandler.TriggerAdmission)
			r.Post("/reconciliations", adminHandler.RunReconciliation)
			r.Post("/users/{id}/credits", adminHandler.GrantCredits)
			r.Get("/users/{id}/ledger", adminHandler.GetLedger)
			r.Get("/audit", adminHandler.ListAudit)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
