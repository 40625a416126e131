// Package managerapi implements the Manager's HTTP face (spec.md §4.1,
// §6.1): judgment intake, the result sink, and the executor heartbeat sink.
package managerapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/xjtu-graphics/judgerd/internal/httpmw"
	"github.com/xjtu-graphics/judgerd/internal/store"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

// Server holds the dependencies the Manager's handlers need.
type Server struct {
	Store     *store.Store
	WebClient *webclient.Client
}

// NewRouter builds the chi router for the Manager HTTP face.
func NewRouter(srv *Server) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(httpmw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(httpmw.LimitBody)

	r.Get("/health", srv.HandleHealth)

	r.Route("/api/judge", func(r chi.Router) {
		r.Post("/executors", srv.HandleExecutorHeartbeat)
		r.Post("/{judgmentID}", srv.HandleJudgeSubmission)
		r.Post("/{judgmentID}/result", srv.HandleJudgeResult)
	})

	return r
}

// HandleHealth is a lightweight liveness probe.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	httpmw.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
