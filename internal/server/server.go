package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/calebfinn/sitewarden/internal/config"
	"github.com/calebfinn/sitewarden/internal/database"
	"github.com/calebfinn/sitewarden/internal/report"
	"github.com/calebfinn/sitewarden/internal/service"
)

type Server struct {
	cfg       *config.Config
	db        *database.DB
	svc       *service.Service
	hub       *Hub
	reportGen *report.Generator
	mux       *http.ServeMux
}

func New(cfg *config.Config, db *database.DB) (*Server, error) {
	if cfg.Scanner.IngestToken == "" {
		slog.Warn("no scanner ingest token configured; /internal routes will reject everything")
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		svc:       service.New(db, cfg.Scanner.HistoryLimit),
		hub:       NewHub(),
		reportGen: report.NewGenerator(db, cfg.Reports.Directory, cfg.Reports.FontPath),
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(securityHeaders(loggingMiddleware(s.identityMiddleware(s.mux))))
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) registerRoutes() {
	// User-scoped API
	s.mux.HandleFunc("/api/projects", s.handleAPIProjects)
	s.mux.HandleFunc("/api/projects/", s.handleAPIProject)
	s.mux.HandleFunc("/api/scans/", s.handleAPIScan)
	s.mux.HandleFunc("/api/findings/", s.handleAPIFinding)
	s.mux.HandleFunc("/api/links", s.handleAPILinks)
	s.mux.HandleFunc("/api/links/", s.handleAPILink)

	// Public capture endpoints
	s.mux.HandleFunc("/api/waitlist", s.handleAPIWaitlist)
	s.mux.HandleFunc("/api/feedback", s.handleAPIFeedback)

	// Scanner ingest (token-authenticated)
	s.mux.HandleFunc("/internal/scans", s.ingestAuth(s.handleIngestStartScan))
	s.mux.HandleFunc("/internal/scans/", s.ingestAuth(s.handleIngestScan))

	// Live scan events
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
