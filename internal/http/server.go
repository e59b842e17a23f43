// Package http exposes the engine over a small JSON API. It is the
// stand-in for the original in-browser UI: every route maps onto one
// engine operation.
package http

import (
	"net/http"
	"time"

	"eyemoney/internal/engine"
	"eyemoney/internal/log"
)

type Server struct {
	http.Server
	engine *engine.Engine
	logger *log.Logger
}

func NewServer(addr string, eng *engine.Engine, logger *log.Logger) *Server {
	s := &Server{engine: eng, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("PUT /api/month", s.handleSetMonth)
	mux.HandleFunc("GET /api/templates", s.handleTemplates)
	mux.HandleFunc("PUT /api/templates", s.handlePutTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.handleDeleteTemplate)
	mux.HandleFunc("GET /api/payments", s.handlePayments)
	mux.HandleFunc("POST /api/payments", s.handleAddPayment)
	mux.HandleFunc("POST /api/payments/unexpected", s.handleAddUnexpected)
	mux.HandleFunc("DELETE /api/payments/{id}", s.handleUndoPayment)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)

	s.Server = http.Server{
		Addr:           addr,
		Handler:        s.logRequests(mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
