package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Clark-Hu/usbest/internal/auth"
	"github.com/Clark-Hu/usbest/internal/config"
	"github.com/Clark-Hu/usbest/internal/live"
	"github.com/Clark-Hu/usbest/internal/metrics"
	"github.com/Clark-Hu/usbest/internal/repository"
	"github.com/Clark-Hu/usbest/internal/store"
	"github.com/Clark-Hu/usbest/internal/survey"
)

// Deps carries the collaborators the handlers need.
type Deps struct {
	Store    *store.Store
	Repo     *repository.Repository
	Results  survey.ResultsReader
	Hub      *live.Hub
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	store    *store.Store
	repo     *repository.Repository
	results  survey.ResultsReader
	hub      *live.Hub
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *log.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		repo:     deps.Repo,
		results:  deps.Results,
		hub:      deps.Hub,
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		logger:   logger,
		router:   r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/feed", s.handleFeed)
		r.With(s.requireUser).Get("/dashboard", s.handleDashboard)
		r.With(s.requireUser).Get("/me/profile", s.handleGetProfile)
		r.With(s.requireUser).Put("/me/profile", s.handlePutProfile)

		r.With(s.requireUser).Post("/ads", s.handleCreatePost(postKindAd))
		r.With(s.requireUser).Post("/remixes", s.handleCreatePost(postKindRemix))
		r.Get("/ads/{id}", s.handleGetPost(postKindAd))
		r.Get("/remixes/{id}", s.handleGetPost(postKindRemix))
		r.Route("/ads/{id}/reviews", func(r chi.Router) {
			r.Get("/", s.handleListReviews)
			r.With(s.requireUser).Post("/", s.handleCreateReview)
		})

		r.Route("/surveys", func(r chi.Router) {
			r.With(s.requireUser).Post("/", s.handleCreateSurvey)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSurvey)
				r.Get("/results", s.handleGetResults)
				r.Get("/live", s.handleLiveResults)
				r.With(s.requireUser).Post("/responses", s.handleSubmitResponse)
				r.With(s.requireUser).Get("/responses/me", s.handleGetMyResponse)
			})
		})

		r.Route("/content/{type}/{id}", func(r chi.Router) {
			r.Get("/engagement", s.handleGetEngagement)
			r.With(s.requireUser).Post("/like", s.handleToggleLike)
			r.Get("/comments", s.handleListComments)
			r.With(s.requireUser).Post("/comments", s.handleCreateComment)
		})
	})
}

// Start boots the HTTP server asynchronously.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	resp := map[string]interface{}{"status": "ok"}
	if stats := s.store.Stats(); stats != nil {
		resp["dbConns"] = map[string]int32{
			"total":    stats.TotalConns(),
			"idle":     stats.IdleConns(),
			"acquired": stats.AcquiredConns(),
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}
