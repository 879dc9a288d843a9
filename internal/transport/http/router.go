package http

import (
	"net/http"

	"assessment-service/internal/app"
	"assessment-service/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the REST and WebSocket endpoints.
func NewRouter(service *app.AttemptService, identity auth.Provider) http.Handler {
	api := NewAPIHandler(service, identity)
	ws := NewWSHandler(service, identity)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/assessments", func(r chi.Router) {
		r.Get("/", api.ListAssessments)
		r.Get("/{id}/result", api.GetResult)
	})
	r.Get("/ws/attempts", ws.ServeWS)
	return r
}
