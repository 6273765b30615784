package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/config"
	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/infra/logging"
	"ocr-batch-sync/internal/usecase"
)

// Server exposes the admin surface: health, metrics and a read-only view
// of the tracked jobs.
type Server struct {
	cfg    *config.Config
	syncUC usecase.JobSyncUseCase
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(cfg *config.Config, syncUC usecase.JobSyncUseCase, log *zerolog.Logger) *Server {
	return &Server{cfg: cfg, syncUC: syncUC, log: log}
}

func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{jobID}", s.handleJobDetails)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Admin.Port),
		Handler: r,
	}

	s.log.Info().Int("port", s.cfg.Admin.Port).Msg("admin server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type jobView struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"document_id"`
	Status      string     `json:"status"`
	FileCount   int        `json:"file_count"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

func toJobView(j *model.Job) jobView {
	return jobView{
		ID:          j.ID,
		DocumentID:  j.DocumentID,
		Status:      string(j.Status),
		FileCount:   j.FileCount,
		SubmittedAt: j.SubmittedAt,
		CompletedAt: j.CompletedAt,
		RefreshedAt: j.LastRefreshAt,
	}
}

// requestCtx tags the request context with the chi request id so every
// log line from the handler carries a trace_id.
func (s *Server) requestCtx(r *http.Request) (context.Context, *zerolog.Logger) {
	ctx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	return ctx, logging.With(ctx, s.log)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, log := s.requestCtx(r)
	jobs, err := s.syncUC.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("admin list jobs failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, toJobView(j))
	}
	writeJSON(w, log, map[string]any{"jobs": views, "count": len(views)})
}

func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	ctx, _ := s.requestCtx(r)
	jobID := chi.URLParam(r, "jobID")
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, s.log)

	job, err := s.syncUC.GetDetails(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidJobID):
			http.Error(w, "invalid job id", http.StatusBadRequest)
		case errors.Is(err, domain.ErrJobNotFound):
			http.Error(w, "job not found", http.StatusNotFound)
		default:
			log.Error().Err(err).Msg("admin job details failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, log, toJobView(job))
}

func writeJSON(w http.ResponseWriter, log *zerolog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("could not encode response")
	}
}
