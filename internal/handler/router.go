package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/gate"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/observability"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
	"github.com/spotlightza/spotlight-edge-go/internal/service"
	"github.com/spotlightza/spotlight-edge-go/internal/session"
)

var tracer = otel.Tracer("handler")

// Deps bundles what the router needs.
type Deps struct {
	Auth       *service.AuthService
	Onboarding *service.OnboardingService
	Provider   port.IdentityProvider
	Store      port.ProfileStore
	Gate       *gate.Gate
	// Sessions is the app-shell session controller: login/logout feed it
	// auth events, and GET /v1/session serves from its state for the
	// session it tracks.
	Sessions *session.Controller
	// Pages is the downstream page tree (reverse proxy to the web
	// frontend). Every request not matching the action API goes through
	// the gate and then here.
	Pages          http.Handler
	Metrics        *observability.Metrics
	AllowedOrigins []string
	SecureCookies  bool
	Logger         *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(d.Logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Store, d.Logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public routes
			r.Post("/register", authRegisterHandler(d.Auth, d.SecureCookies, d.Logger))
			r.Post("/login", authLoginHandler(d.Auth, d.Sessions, d.SecureCookies, d.Logger))
			r.Get("/pending-email", pendingEmailHandler(d.Auth, d.Logger))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(d.Provider, d.Logger))
				r.Post("/logout", authLogoutHandler(d.Auth, d.Sessions, d.SecureCookies, d.Logger))
				r.Post("/switch-mode", switchModeHandler(d.Auth, d.Logger))
			})
		})

		r.Get("/session", sessionHandler(d.Auth, d.Sessions, d.Logger))
		r.Get("/metrics/gate", gateMetricsHandler(d.Metrics))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Provider, d.Logger))
			r.Post("/onboarding/complete", onboardingCompleteHandler(d.Onboarding, d.Logger))
			r.Post("/onboarding/{step}", onboardingStepHandler(d.Onboarding, d.Logger))
		})
	})

	// --- Page tree ---
	// Everything else is a navigation request: gate it, then hand it to
	// the page origin.
	if d.Pages != nil && d.Gate != nil {
		r.Handle("/*", d.Gate.Middleware(d.Pages))
	}

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(store port.ProfileStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "edge-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			// A lookup against a reserved address exercises the store
			// without depending on data.
			_, err := store.GetProfileByEmail(ctx, "healthcheck@invalid")
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func gateMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetGateSnapshot())
	}
}
