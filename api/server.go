/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through the handler's logrus logger
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web client

ROUTE GROUPS:
  POST /               Push dispatch (requires Authorization)
  /api/trips/*         Trips, rosters, expenses, payments, settlement
  /api/devices         Device token registration

SECURITY NOTE:
  The push route only checks that an Authorization header is present. The
  platform gateway in front of the service verifies the token itself.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.Log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})

	// Push boundary
	r.With(requireAuthorization).Post("/", h.SendPush)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/trips", func(r chi.Router) {
			r.Post("/", h.CreateTrip)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTrip)
				r.Get("/members", h.ListMembers)
				r.Post("/members", h.AddMember)
				r.Get("/expenses", h.ListExpenses)
				r.Post("/expenses", h.CreateExpense)
				r.Delete("/expenses/{expenseID}", h.DeleteExpense)
				r.Post("/payments", h.CreatePayment)
				r.Get("/balances", h.GetBalances)
				r.Get("/settlement", h.GetSettlement)
			})
		})

		r.Post("/devices", h.RegisterDevice)
	})

	return r
}

// requireAuthorization rejects requests without an Authorization header
// before any handler work happens.
func requireAuthorization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeError(w, http.StatusUnauthorized, "Missing authorization header", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
