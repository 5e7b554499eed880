// Package api exposes the job intake surface: the frontend creates
// analysis jobs here and the worker picks them up on its next pass.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contract-analyzer/internal/models"
	"contract-analyzer/internal/store"
	"contract-analyzer/internal/telemetry"
)

// JobStore is the persistence surface the intake API needs.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkCanceled(ctx context.Context, id string) error
}

// RateLimiter gates job creation per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Server wires HTTP handlers for the intake API.
type Server struct {
	store   JobStore
	limiter RateLimiter
}

// New constructs the API server. A nil limiter disables rate limiting.
func New(st JobStore, limiter RateLimiter) *Server {
	return &Server{store: st, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleCreate)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Post("/jobs/{id}/cancel", s.handleCancel)
	return r
}

type createRequest struct {
	UserID     string             `json:"user_id"`
	BucketURL  string             `json:"bucket_url"`
	FileName   string             `json:"file_name"`
	Recipients []models.Recipient `json:"recipients"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	candidate := models.Job{
		UserID:     req.UserID,
		BucketURL:  req.BucketURL,
		FileName:   req.FileName,
		Recipients: req.Recipients,
	}
	if err := candidate.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), req.UserID)
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		UserID:     req.UserID,
		BucketURL:  req.BucketURL,
		FileName:   req.FileName,
		Recipients: req.Recipients,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	telemetry.JobsEnqueued.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.MarkCanceled(r.Context(), id); err != nil {
		http.Error(w, "failed to cancel job", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusCanceled})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
