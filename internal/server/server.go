package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/homehubapp/homehub/internal/config"
	"github.com/homehubapp/homehub/internal/handler"
	"github.com/homehubapp/homehub/internal/middleware"
	"github.com/homehubapp/homehub/internal/photos"
	"github.com/homehubapp/homehub/internal/reset"
	"github.com/homehubapp/homehub/internal/supabase"
	"github.com/homehubapp/homehub/internal/weather"
)

type Server struct {
	cfg          config.Config
	store        *supabase.Client
	resetH       *handler.ResetHandler
	accessH      *handler.AccessHandler
	weatherH     *handler.WeatherHandler
	photosH      *handler.PhotosHandler
	diagnosticsH *handler.DiagnosticsHandler
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	store := supabase.NewClient(supabase.Config{
		URL:        cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
	}, logger.With("component", "supabase"))

	runner := reset.NewRunner(store, store, store, logger.With("component", "reset"))

	weatherSvc := weather.NewService(weather.Config{
		WeatherbitKey:     cfg.WeatherbitKey,
		TomorrowKey:       cfg.TomorrowKey,
		VisualCrossingKey: cfg.VisualCrossingKey,
		PirateWeatherKey:  cfg.PirateWeatherKey,
	}, cfg.GenAIURL, cfg.GenAIKey, cfg.GenAIModel, logger.With("component", "weather"))

	photosSvc := photos.NewService(photos.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
		AlbumID:      cfg.PhotosAlbumID,
		PageSize:     cfg.PhotosPageSize,
		FetchMode:    cfg.PhotosFetchMode,
	}, logger.With("component", "photos"))

	return &Server{
		cfg:          cfg,
		store:        store,
		resetH:       handler.NewResetHandler(store, runner, cfg.TimeZone, logger.With("component", "reset_handler")),
		accessH:      handler.NewAccessHandler(store, logger.With("component", "access")),
		weatherH:     handler.NewWeatherHandler(weatherSvc, logger.With("component", "weather_handler")),
		photosH:      handler.NewPhotosHandler(photosSvc, logger.With("component", "photos_handler")),
		diagnosticsH: handler.NewDiagnosticsHandler(store, cfg.OwnerEmail, cfg.SupabaseURL, cfg.SupabaseServiceKey != "", logger.With("component", "diagnostics")),
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/auth/access", s.withStore(s.accessH.Check))
	mux.HandleFunc("POST /api/chores/reset-my-household", s.rateLimitedHandler(s.withStore(s.resetH.ResetMine)))
	// The cron scheduler calls with GET; POST is kept for manual triggering.
	mux.HandleFunc("GET /api/cron/chores-reset", s.withStore(s.resetH.CronReset))
	mux.HandleFunc("POST /api/cron/chores-reset", s.withStore(s.resetH.CronReset))
	mux.HandleFunc("GET /api/diagnostics/supabase", s.diagnosticsH.Check)

	mux.HandleFunc("GET /api/weather/aggregate", s.weatherH.Aggregate)
	mux.HandleFunc("GET /api/weather/alerts", s.weatherH.Alerts)
	mux.HandleFunc("POST /api/weather/briefing", s.weatherH.Briefing)

	mux.HandleFunc("GET /api/photos/google", s.photosH.Google)

	var h http.Handler = mux
	h = middleware.CORS(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.RequestID(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// withStore rejects store-backed routes up front when Supabase is not
// configured, so handlers never see a half-built client.
func (s *Server) withStore(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.cfg.ValidateSupabase(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "server configuration error", "detail": err.Error()})
			return
		}
		h(w, r)
	}
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
