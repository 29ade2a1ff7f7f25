package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"caredesk.io/telehealth/internal/auth"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/auth/google/{role}", apiHandler.GoogleLoginHandler)
		r.Get("/auth/google/{role}/callback", apiHandler.GoogleCallbackHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/register", apiHandler.RegisterHandler)

		// Authenticated routes, gated per role capability
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.With(apiHandler.RequireCapability(auth.CapSubmitQuery)).
				Post("/queries", apiHandler.SubmitQueryHandler)
			r.With(apiHandler.RequireCapability(auth.CapListQueries)).
				Get("/queries", apiHandler.ListQueriesHandler)
			r.With(apiHandler.RequireCapability(auth.CapListQueries)).
				Get("/queries/{queryID}", apiHandler.GetQueryHandler)
			r.With(apiHandler.RequireCapability(auth.CapApproveResponse)).
				Post("/queries/{queryID}/approve", apiHandler.ApproveQueryHandler)
			r.With(apiHandler.RequireCapability(auth.CapEditResponse)).
				Put("/queries/{queryID}/response", apiHandler.SaveEditHandler)
			r.With(apiHandler.RequireCapability(auth.CapEditResponse)).
				Post("/queries/{queryID}/edit", apiHandler.BeginEditHandler)

			r.With(apiHandler.RequireCapability(auth.CapReadNotifications)).
				Get("/notifications", apiHandler.ListNotificationsHandler)
			r.With(apiHandler.RequireCapability(auth.CapReadNotifications)).
				Get("/notifications/unread-count", apiHandler.UnreadCountHandler)
			r.With(apiHandler.RequireCapability(auth.CapReadNotifications)).
				Post("/notifications/{notificationID}/read", apiHandler.MarkNotificationReadHandler)
			r.With(apiHandler.RequireCapability(auth.CapReadNotifications)).
				Post("/notifications/read-all", apiHandler.MarkAllReadHandler)

			r.Get("/events", apiHandler.EventsHandler)

			r.With(apiHandler.RequireCapability(auth.CapListPatients)).
				Get("/patients", apiHandler.ListPatientsHandler)
			r.With(apiHandler.RequireCapability(auth.CapListPatients)).
				Get("/patients/{patientID}", apiHandler.GetPatientHandler)
		})
	})

	return r
}
