/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for the app
  5. Authenticate: Bearer-token identity (all /api routes)

ROUTE GROUPS:
  /api/schedule          Timetable browsing
  /api/classes/*         Booking attempts
  /api/bookings/*        Member booking lifecycle
  /api/packages/*        Subscription shop
  /api/achievements/*    Progress + challenges
  /api/admin/*           Boss surface (role-gated)

SEE ALSO:
  - handlers.go: handler implementations
  - auth.go: identity middleware
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. jwtSecret must
// match the auth service's signing secret.
func NewRouter(h *Handler, jwtSecret string, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes (all authenticated)
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(jwtSecret))

		r.Get("/schedule", h.GetSchedule)
		r.Get("/me", h.GetMe)

		r.Route("/classes", func(r chi.Router) {
			r.Post("/{instanceID}/book", h.BookClass)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Get("/{id}/cancel-preview", h.PreviewCancel)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/switch", h.SwitchBooking)
		})

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", h.ListPackages)
			r.Post("/{id}/purchase", h.PurchasePackage)
		})

		r.Route("/achievements", func(r chi.Router) {
			r.Get("/", h.ListAchievements)
			r.Post("/{id}/accept", h.AcceptChallenge)
		})

		// Boss surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireBoss)

			r.Get("/clients", h.ListClients)
			r.Post("/clients/{id}/block", h.BlockClient)
			r.Post("/clients/{id}/unblock", h.UnblockClient)
			r.Post("/bookings/{id}/complete", h.CompleteBooking)
			r.Get("/finances", h.GetRevenue)
			r.Get("/templates", h.ListTemplates)
			r.Post("/templates", h.UpsertTemplate)

			r.Get("/scenarios", h.ListScenarios)
			r.Get("/scenarios/current", h.GetCurrentScenario)
			r.Post("/scenarios/load", h.LoadScenario)
		})
	})

	return r
}
