// Package api exposes the chunk worker and stitcher over HTTP so an external
// orchestrator can fan chunks out and trigger reassembly.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", HealthHandler)

	r.Route("/v1/assets/{asset}", func(r chi.Router) {
		r.Get("/videos", app.VideosHandler)
		r.Route("/workflows/{workflow}", func(r chi.Router) {
			r.Post("/chunks", app.ChunkHandler)
			r.Post("/expect", app.ExpectHandler)
			r.Post("/stitch", app.StitchHandler)
			r.Get("/frames", app.FramesHandler)
		})
	})

	return r
}

// requestID tags every request with a UUID, reusing one supplied by the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}
