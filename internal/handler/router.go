package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/paiban/nurseroster/internal/metrics"
	"github.com/paiban/nurseroster/internal/middleware"
)

// Pinger 健康检查依赖
type Pinger interface {
	Health(ctx context.Context) error
}

// RouterOptions 路由配置
type RouterOptions struct {
	Version        string
	AllowedOrigins []string
	RateLimit      float64 // 每秒请求数，0 为不限流
	Metrics        bool
	DB             Pinger // 可为 nil
}

// NewRouter 创建路由并挂载中间件
func NewRouter(h *RosterHandler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(opts.RateLimit)))
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if opts.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.DB.Health(ctx); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				respondJSON(w, http.StatusServiceUnavailable, status)
				return
			}
			status["database"] = "ok"
		}
		respondJSON(w, http.StatusOK, status)
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"version": opts.Version,
			"name":    "nurseroster",
		})
	})

	if opts.Metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", h.Rules)

		r.Route("/rosters", func(r chi.Router) {
			r.Get("/", h.ListRosters)
			r.Post("/generate", h.Generate)
			r.Get("/jobs/{id}", h.GetJob)
			r.Post("/validate", h.Validate)
			r.Post("/analyze", h.Analyze)
			r.Post("/boundary", h.Boundary)
			r.Post("/swap", h.Swap)
			r.Get("/{id}", h.GetRoster)
		})
	})

	return r
}
