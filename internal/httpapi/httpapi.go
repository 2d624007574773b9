// Package httpapi serves a read-only JSON API over stored snapshots and the
// Prometheus metrics endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/metrics"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// Server routes requests to the store. DefaultOrg answers requests that do
// not name an org.
type Server struct {
	Store      *store.Store
	DefaultOrg string
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	metrics.Register()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.listSnapshots)
		r.Get("/latest", s.latestSnapshot)
		r.Get("/compare", s.compareSnapshots)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.snapshotSummary)
			r.Get("/unreferenced", s.unreferenced)
		})
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http.request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "elapsed", time.Since(t), "request_id", middleware.GetReqID(r.Context()))
	})
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http.encode", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}

func (s *Server) org(r *http.Request) string {
	if org := r.URL.Query().Get("org"); org != "" {
		return org
	}
	return s.DefaultOrg
}

var errMissingOrg = errors.New("org is required")

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	org := s.org(r)
	if org == "" {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	snaps, err := s.Store.ListSnapshots(r.Context(), org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snaps == nil {
		snaps = []*entity.Record{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	org := s.org(r)
	if org == "" {
		writeError(w, http.StatusBadRequest, errMissingOrg)
		return
	}
	snap, err := s.Store.LatestSnapshot(r.Context(), org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, errors.New("no latest snapshot for org "+org))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func snapshotID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("snapshot id must be a positive integer")
	}
	return id, nil
}

func (s *Server) snapshotSummary(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sum, err := s.Store.SnapshotSummary(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) unreferenced(w http.ResponseWriter, r *http.Request) {
	id, err := snapshotID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	maxScore := 0.0
	if v := q.Get("max_score"); v != "" {
		if maxScore, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("max_score must be a number"))
			return
		}
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
	}
	var kinds []entity.Kind
	if v := q.Get("kind"); v != "" {
		for _, name := range strings.Split(v, ",") {
			k, err := entity.ParseKind(strings.TrimSpace(name))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			kinds = append(kinds, k)
		}
	}
	recs, err := s.Store.Unreferenced(r.Context(), id, maxScore, kinds, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if recs == nil {
		recs = []*entity.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) compareSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, errors.New("from and to must be snapshot ids"))
		return
	}
	cmp, err := s.Store.CompareSnapshots(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}
