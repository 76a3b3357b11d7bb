package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leca/bandwidth-proxy/internal/api"
	"github.com/leca/bandwidth-proxy/internal/config"
	"github.com/leca/bandwidth-proxy/internal/database"
	"github.com/leca/bandwidth-proxy/internal/handler"
	"github.com/leca/bandwidth-proxy/internal/imageproc"
	"github.com/leca/bandwidth-proxy/internal/policy"
)

// Server holds the application dependencies and HTTP router.
type Server struct {
	DB     database.Database
	Config *config.Config
	Router chi.Router
}

// New creates a new Server with a fully configured chi router. db may be nil,
// in which case the stats endpoints answer 404.
func New(db database.Database, fetcher handler.Fetcher, cfg *config.Config) *Server {
	s := &Server{DB: db, Config: cfg}

	h := &handler.Handler{
		DB:      db,
		Config:  cfg,
		Fetcher: fetcher,
		Transcoder: imageproc.NewTranscoder(imageproc.Options{
			DefaultQuality: cfg.DefaultQuality,
			MaxInputBytes:  cfg.MaxInputBytes,
			MaxConcurrent:  cfg.MaxConcurrentTranscodes,
		}),
		Policy: policy.Policy{
			MinCompressSize:            cfg.MinCompressSize,
			MinTransparentCompressSize: cfg.MinTransparentCompressSize,
			AlreadyOptimalQuality:      cfg.AlreadyOptimalQuality,
		},
	}
	r := chi.NewRouter()

	// CORS runs first so preflight OPTIONS never reach the proxy.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "X-Original-Size", "X-Bytes-Saved", "X-Proxy-Bypass"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (no auth required).
	r.Get("/health", s.Health)
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Use(api.AuthMiddleware(cfg.StatsToken))
		r.Get("/", h.GetStats)
		r.Get("/recent", h.ListOutcomes)
	})

	// The proxy itself.
	r.With(api.ParamsMiddleware(cfg.DefaultQuality)).Get("/", h.Proxy)

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
