// Package server provides the HTTP server and routing for ledgermap.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/database"
	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/batch"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/patterns"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	DataDir    string
	LedgerDB   *database.DB
	PatternsDB *database.DB

	Service      *ledger.Service
	Directory    *directory.Directory
	Patterns     *patterns.Store
	Orchestrator *matching.Orchestrator
	Mapper       *batch.Mapper
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		handlers: NewHandlers(
			cfg.Log,
			cfg.Service,
			cfg.Directory,
			cfg.Patterns,
			cfg.Orchestrator,
			cfg.Mapper,
		),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DataDir, cfg.LedgerDB, cfg.PatternsDB),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if devMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", s.handlers.HandleIngest)
			r.Get("/", s.handlers.HandleListTransactions)
			r.Delete("/", s.handlers.HandleDeleteTransactions)
			r.Get("/stats", s.handlers.HandleTransactionStats)
			r.Get("/{id}", s.handlers.HandleGetTransaction)
			r.Post("/{id}/map", s.handlers.HandleMap)
			r.Post("/{id}/verify", s.handlers.HandleVerify)
			r.Post("/{id}/reject", s.handlers.HandleReject)
			r.Get("/{id}/suggestion", s.handlers.HandleSuggestion)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handlers.HandleListAccounts)
			r.Post("/", s.handlers.HandleUpsertAccount)
			r.Delete("/", s.handlers.HandleDeleteAccounts)
			r.Post("/reload", s.handlers.HandleReloadAccounts)
			r.Get("/{id}", s.handlers.HandleGetAccount)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handlers.HandleListRules)
			r.Post("/", s.handlers.HandleAddRule)
		})

		r.Post("/mapping/run", s.handlers.HandleRunMapping)
		r.Get("/patterns/stats", s.handlers.HandlePatternStats)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
		})
	})
}

// Router exposes the mux, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		nfe  *domain.NotFoundError
		ise  *domain.InvalidStateError
		cce  *domain.ConcurrencyConflictError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &nfe):
		status = http.StatusNotFound
	case errors.As(err, &ise), errors.As(err, &cce):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
