package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/z6sim/core"
)

// reportProvider is the subset of ReportService the HTTP layer depends on,
// kept as an interface so tests can substitute a fixed-data stub.
type reportProvider interface {
	Metrics() core.RunMetrics
	Info() map[string]interface{}
	RecordsByKind(kind core.RecordKind, count int) []core.Record
}

// Server exposes a completed run's metrics over a small HTTP API plus a
// Prometheus /metrics endpoint, mirroring the teacher's chi-routed
// walletserver in shape (router field, routes() method, JSON handlers).
type Server struct {
	router     chi.Router
	httpServer *http.Server
	svc        reportProvider
}

// NewServer constructs the router and HTTP server bound to addr.
func NewServer(addr string, svc reportProvider) *Server {
	s := &Server{router: chi.NewRouter(), svc: svc}
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) Start() error { return s.httpServer.ListenAndServe() }

func (s *Server) routes() {
	s.router.Use(loggingMiddleware)
	s.router.Get("/api/info", s.handleInfo)
	s.router.Get("/api/metrics", s.handleMetrics)
	s.router.Get("/api/records/{kind}", s.handleRecords)
	s.router.Handle("/metrics", promHandler())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Info())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.Metrics())
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	kindStr := chi.URLParam(r, "kind")
	kindN, err := strconv.Atoi(kindStr)
	if err != nil {
		http.Error(w, "invalid kind", http.StatusBadRequest)
		return
	}
	count := 50
	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	if count > 1000 {
		http.Error(w, "count too large", http.StatusBadRequest)
		return
	}
	recs := s.svc.RecordsByKind(core.RecordKind(kindN), count)
	writeJSON(w, recs)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
