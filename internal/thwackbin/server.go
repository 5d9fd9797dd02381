package thwackbin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/appthwack/thwack/internal/observability"
)

const maxUpload = 64 << 20

type Server struct {
	store   *Store
	apiKey  string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewServer serves store. Requests must carry apiKey as the basic auth
// user name unless apiKey is empty. metrics may be nil.
func NewServer(store *Store, apiKey string, logger zerolog.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		store:   store,
		apiKey:  apiKey,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Server) Store() *Store { return s.store }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/api", func(r chi.Router) {
			r.Get("/project", s.handleProjects)
			r.Get("/devicepool/{projectID}", s.handleDevicePools)
			r.Post("/file", s.handleUpload)
			r.Post("/run", s.handleSchedule)
			r.Get("/run/{projectID}/{runID}", s.handleResult)
			r.Get("/run/{projectID}/{runID}/status", s.handleStatus)
		})
		r.Get("/reports/{name}", s.handleReport)
	})

	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveServed(route, status)
		s.logger.Debug().Str("method", r.Method).Str("route", route).Int("status", status).Msg("served")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			user, _, ok := r.BasicAuth()
			if !ok || user != s.apiKey {
				w.Header().Set("WWW-Authenticate", `Basic realm="appthwack"`)
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Projects())
}

func (s *Server) handleDevicePools(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.Atoi(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	pools, err := s.store.Pools(projectID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	f := s.store.AddFile(name, data)
	s.logger.Info().Int("file", f.ID).Str("name", name).Int("bytes", len(data)).Msg("file uploaded")
	writeJSON(w, http.StatusOK, map[string]int{"file_id": f.ID})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	form := map[string]string{}
	for k, v := range r.Form {
		if len(v) > 0 {
			form[k] = v[0]
		}
	}

	run, err := s.store.CreateRun(form)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info().Int("project", run.ProjectID).Int("run", run.ID).Str("kind", string(run.Kind)).Msg("run scheduled")
	writeJSON(w, http.StatusOK, map[string]any{"run_id": run.ID, "name": run.Name})
}

func runParams(r *http.Request) (int, int, bool) {
	projectID, err := strconv.Atoi(chi.URLParam(r, "projectID"))
	if err != nil {
		return 0, 0, false
	}
	runID, err := strconv.Atoi(chi.URLParam(r, "runID"))
	if err != nil {
		return 0, 0, false
	}
	return projectID, runID, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := runParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid run path")
		return
	}
	if s.store.AutoAdvance {
		if _, err := s.store.Advance(projectID, runID); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	res, err := s.store.Result(projectID, runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Summary)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	projectID, runID, ok := runParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid run path")
		return
	}
	res, err := s.store.Result(projectID, runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	data, ok := s.store.Report(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("store failure")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
