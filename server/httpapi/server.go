package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/engine"
	locking "github.com/tuannm99/novacsv/internal/lock"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/sql/executor"
	"github.com/tuannm99/novacsv/internal/sql/parser"
	"github.com/tuannm99/novacsv/internal/sql/planner"
)

const maxQueryBody = 1 << 20

// Backend is what the HTTP layer needs from a database.
type Backend interface {
	Query(sql string) (*executor.Result, error)
	ListTables() []string
	Describe(name string) (*engine.TableMeta, error)
	ListIndexes(table string) ([]engine.IndexMeta, error)
}

type Server struct {
	httpAddr string
	router   *chi.Mux
	db       Backend
}

func NewServer(addr string, db Backend, debug bool) *Server {
	s := &Server{
		httpAddr: addr,
		router:   chi.NewRouter(),
		db:       db,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	if debug {
		s.router.Use(requestLogger)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.health)
	s.router.Get("/tables", s.listTables)
	s.router.Get("/tables/{name}", s.describeTable)
	s.router.Post("/query", s.query)
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.WithFields(logrus.Fields{"addr": s.httpAddr}).Info("httpapi.listening")

	select {
	case err := <-errc:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logger.Log.Info("httpapi.stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TablesResponse{Tables: s.db.ListTables()})
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	meta, err := s.db.Describe(name)
	if err != nil {
		status, code := classify(err)
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	idx, err := s.db.ListIndexes(name)
	if err != nil {
		status, code := classify(err)
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	writeJSON(w, http.StatusOK, TableResponse{Table: meta, Indexes: idx})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ExecuteResponse{Error: "bad request body: " + err.Error(), Code: "bad_request"})
		return
	}
	res, err := s.db.Query(req.SQL)
	if err != nil {
		status, code := classify(err)
		if status == http.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"err":        err,
			}).Error("httpapi.query_failed")
		}
		writeJSON(w, status, ExecuteResponse{Error: err.Error(), Code: code})
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: res})
}

// classify maps engine errors onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	var syn *parser.SyntaxError
	switch {
	case errors.As(err, &syn):
		return http.StatusBadRequest, "syntax"
	case errors.Is(err, parser.ErrSchema), errors.Is(err, codec.ErrCast), errors.Is(err, codec.ErrDecimalRange),
		errors.Is(err, btree.ErrKeyKind):
		return http.StatusBadRequest, "schema"
	case errors.Is(err, parser.ErrNotSupported), errors.Is(err, planner.ErrUnsupportedPredicate):
		return http.StatusBadRequest, "unsupported"
	case errors.Is(err, engine.ErrTableNotFound), errors.Is(err, engine.ErrNotIndexed):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, locking.ErrLocked):
		return http.StatusConflict, "locked"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithFields(logrus.Fields{"err": err}).Warn("httpapi.write_failed")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start).String(),
		}).Debug("httpapi.request")
	})
}
