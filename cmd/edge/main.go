package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/config"
	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/gate"
	"github.com/spotlightza/spotlight-edge-go/internal/handler"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/broadcast"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/cache"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/devauth"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/observability"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/resilience"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/supabase"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
	"github.com/spotlightza/spotlight-edge-go/internal/service"
	"github.com/spotlightza/spotlight-edge-go/internal/session"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = godotenv.Load()

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("web_origin", cfg.WebOrigin),
		zap.Duration("gate_budget", cfg.GateBudget),
		zap.Duration("profile_cache_ttl", cfg.ProfileCacheTTL),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "spotlight-edge")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	profileCache := cache.New[*domain.Profile](cfg.ProfileCacheTTL)
	defer profileCache.Close()
	pendingEmails := cache.New[string](cfg.PendingEmailTTL)
	defer pendingEmails.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Identity provider & profile store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var provider port.IdentityProvider
	var store port.ProfileStore
	switch {
	case cfg.DevAuth:
		logger.Warn("DEV_AUTH: using in-memory identity provider and profile store")
		provider = devauth.New(logger)
		store = devauth.NewStore()
	case cfg.SupabaseURL != "":
		logger.Info("using Supabase backend", zap.String("supabase_url", cfg.SupabaseURL))
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
		provider = supabaseClient
		store = supabaseClient
	default:
		logger.Fatal("no identity backend: set SUPABASE_URL or DEV_AUTH=true")
	}

	// --- Cross-context broadcast ---
	var broadcaster port.Broadcaster
	var redisBroadcast *broadcast.Redis
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisBroadcast = broadcast.NewRedis(rdb, "spotlight:auth-sync", logger)
		broadcaster = redisBroadcast
		logger.Info("auth sync broadcast over redis", zap.String("addr", cfg.RedisAddr))
	} else {
		broadcaster = broadcast.NewMemory()
		logger.Info("auth sync broadcast in-process only")
	}

	// --- Services ---
	// The services share the gate's profile cache so every mutation is
	// visible to the next gated navigation.
	authSvc := service.NewAuthService(provider, store, broadcaster, pendingEmails, profileCache, logger)
	onboardingSvc := service.NewOnboardingService(store, broadcaster, profileCache, logger)

	// --- Session controller ---
	controller := session.New(provider, store, broadcaster, logger, metrics, session.Options{
		InitRetries:    cfg.InitRetries,
		InitialBackoff: cfg.InitialBackoff,
		DebounceWindow: cfg.DebounceWindow,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := controller.Initialize(ctx, nil); err != nil {
			logger.Error("session controller initialization failed", zap.Error(err))
		}
	}()
	defer controller.Close()

	// --- Gate + page proxy ---
	g := gate.New(provider, store, profileCache, metrics, logger, gate.Options{
		Budget:        cfg.GateBudget,
		JWTSecret:     cfg.GoTrueJWTSecret,
		SecureCookies: cfg.SecureCookies,
	})

	pages, err := newPageProxy(cfg.WebOrigin, logger)
	if err != nil {
		logger.Fatal("invalid WEB_ORIGIN", zap.Error(err))
	}

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Auth:           authSvc,
		Onboarding:     onboardingSvc,
		Provider:       provider,
		Store:          store,
		Gate:           g,
		Sessions:       controller,
		Pages:          pages,
		Metrics:        metrics,
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.SecureCookies,
		Logger:         logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}
	if redisBroadcast != nil {
		redisBroadcast.Close()
	}

	logger.Info("server stopped")
}

// newPageProxy builds the reverse proxy the gate fronts: allowed
// navigation requests are served by the web frontend unchanged.
func newPageProxy(origin string, logger *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("page proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}
