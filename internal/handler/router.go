package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"userdock/internal/pkg/errs"
	"userdock/internal/pkg/limiter"
	"userdock/internal/pkg/logx"
	"userdock/internal/pkg/resp"
)

// Router builds the HTTP routing table: the JSON API under /api, a health check,
// and, when configured, the static asset directory at the root.
// ctx bounds the lifetime of background work such as rate limiter cleanup.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	broadcastLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.BroadcastRate), deps.Config.BroadcastBurst)

	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "userdock",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotFound))
		})

		api.Route("/user/{id}", func(u chi.Router) {
			u.Get("/", HandleGetUser(deps))
			u.Post("/", HandleUpdateUser(deps))
			u.Post("/message", HandleAppendMessage(deps))
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Get("/users", HandleListUsers(deps))
			admin.With(broadcastLimiter.Middleware).Post("/broadcast", HandleBroadcast(deps))
		})
	})

	if deps.Config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(deps.Config.StaticDir)))
	}

	return r
}
