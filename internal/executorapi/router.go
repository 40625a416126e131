// Package executorapi implements the Executor's HTTP face (spec.md §4.4,
// §6.2): a liveness probe and the judge intake endpoint the Manager's
// dispatcher hits.
package executorapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/xjtu-graphics/judgerd/internal/httpmw"
	"github.com/xjtu-graphics/judgerd/internal/templatecache"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

// Server holds the dependencies the Executor's handlers need.
type Server struct {
	WebClient     *webclient.Client
	Templates     *templatecache.Cache
	TmpDir        string
	ManagerIP     string
	ManagerPort   int
	ExecutorPort  int
	ParallelBuild int

	// PipelineBinary is the path to the cmd/judge-pipeline executable this
	// Executor spawns for each judgment. Defaults to "judge-pipeline"
	// (resolved via PATH) when empty.
	PipelineBinary string
}

// NewRouter builds the chi router for the Executor HTTP face.
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

	r.Get("/alive", srv.HandleAlive)
	r.Post("/api/judge/{judgmentID}", srv.HandleJudge)

	return r
}

// HandleAlive answers the heartbeat reporter's loopback self-probe and the
// Manager's own liveness expectations — a bare 200.
func (s *Server) HandleAlive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
