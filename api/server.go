/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. hlog:       Request-scoped zerolog logger, request id, access log
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for the desktop/web front end
  4. Auth:       HTTP basic auth against the SHA-256 user map, when configured

ROLES:
  consulta  read endpoints
  editor    rentals, payments, maintenance
  admin     reconciliation passes
  With no users configured every request is treated as admin.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/users.go: User directory
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/rental-ledger/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, log zerolog.Logger, users *auth.Directory) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(users))

		// Read routes
		r.Group(func(r chi.Router) {
			r.Use(requireRole(auth.RoleConsulta))
			r.Get("/projects", h.ListProjects)
			r.Get("/equipment", h.ListEquipment)
			r.Get("/equipment/{id}/maintenance", h.MaintenanceStatus)
			r.Get("/entities", h.ListEntities)
			r.Get("/rentals/view-a", h.ViewA)
			r.Get("/rentals/view-b", h.ViewB)
			r.Get("/clients/{id}/payments", h.ListPayments)
			r.Get("/clients/{id}/balance", h.ClientBalance)
		})

		// Write routes
		r.Group(func(r chi.Router) {
			r.Use(requireRole(auth.RoleEditor))
			r.Post("/rentals", h.RegisterRental)
			r.Post("/operator-payments", h.RegisterOperatorPayment)
			r.Post("/payments", h.RecordPayment)
			r.Post("/maintenance", h.RecordMaintenance)
		})

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Use(requireRole(auth.RoleAdmin))
			r.Post("/compare", h.Compare)
			r.Post("/repair", h.Repair)
			r.Post("/backfill-attachments", h.BackfillAttachments)
			r.Post("/remap-operator", h.RemapOperator)
			r.Post("/rename-subcategory", h.RenameSubcategory)
			r.Post("/seed-maintenance", h.SeedMaintenance)
			r.Post("/attribute", h.Attribute)
			r.Post("/assign-pattern", h.AssignPattern)
			r.Get("/audit", h.Audit)
			r.Get("/runs", h.ListReconciliationRuns)
			r.Get("/report.xlsx", h.ReportWorkbook)
		})
	})

	return r
}

// =============================================================================
// AUTH
// =============================================================================

type roleKey struct{}

// authenticate resolves the caller's role from basic auth. With an empty
// directory every caller is admin.
func authenticate(users *auth.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if users == nil || !users.Enabled() {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, auth.RoleAdmin)))
				return
			}

			name, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="alquileres"`)
				writeError(w, http.StatusUnauthorized, "Authentication required", nil)
				return
			}
			role, ok := users.Authenticate(name, password)
			if !ok {
				hlog.FromRequest(r).Warn().Str("user", name).Msg("rejected credentials")
				w.Header().Set("WWW-Authenticate", `Basic realm="alquileres"`)
				writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}

func requireRole(min auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(roleKey{}).(auth.Role)
			if !role.Allows(min) {
				writeError(w, http.StatusForbidden, "Role "+string(min)+" required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
