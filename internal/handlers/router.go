package handlers

import (
	"io/fs"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gluk-w/webtail/internal/middleware"
)

// RouterOptions are the deployment-specific parts of the route table.
type RouterOptions struct {
	RelayPath      string
	FrontendOrigin string
	// Frontend is the built viewer. Nil disables static hosting.
	Frontend fs.FS
}

// NewRouter wires the API onto a chi router.
func NewRouter(a *API, opts RouterOptions) chi.Router {
	relayPath := opts.RelayPath
	if relayPath == "" {
		relayPath = "/ws"
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if opts.FrontendOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{opts.FrontendOrigin},
			AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", a.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/hello", a.Hello)
		r.Get("/applications", a.Applications)
		r.Get("/sse", a.Stream)
	})

	r.Get(relayPath, a.Relay)

	if opts.Frontend != nil {
		spa := middleware.NewSPAHandler(opts.Frontend, "/api/", "/health", "/metrics", relayPath)
		r.NotFound(spa.ServeHTTP)
	}
	return r
}
