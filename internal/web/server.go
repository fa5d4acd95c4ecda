// Package web exposes the HTTP surface: the contacts API used by the
// import service and the Google OAuth flow for pulling a user's address book.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	coreconfig "github.com/promolabs/promobot/core/config"
	"github.com/promolabs/promobot/core/logger"
)

// Server hosts the JSON API and the OAuth endpoints.
type Server struct {
	cfg *coreconfig.Config
	srv *http.Server
}

func NewServer(cfg *coreconfig.Config, api *API, google *GoogleImporter) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	origins := cfg.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", api.handleHealth)

	if google != nil {
		r.Get("/auth/google/login", google.handleLogin)
		r.Get("/auth/google/callback", google.handleCallback)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/contacts", api.handleImportContacts)
		r.Get("/users/{id}", api.handleGetUser)
		r.Post("/users/{id}/publish", api.handlePublish)
	})

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("listening",
			slog.String("event", "http.listen"),
			slog.String("addr", s.srv.Addr),
		)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.HTTP.Info("request",
			slog.String("event", "http.request"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("rid", chimw.GetReqID(r.Context())),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}
