package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/maltedev/catalog-enricher/internal/jobs"
	"github.com/maltedev/catalog-enricher/internal/models"
	"github.com/maltedev/catalog-enricher/internal/sheet"
	"github.com/maltedev/catalog-enricher/internal/storage"
)

const uploadAccepted = "Processing started. Use /status/{job_id} to check progress and /download/{job_id} to get results when complete"

// JobStarter hands an accepted upload to background processing.
type JobStarter interface {
	Start(ctx context.Context, job jobs.Job)
}

type Handlers struct {
	registry       jobs.Registry
	starter        JobStarter
	store          *storage.Local
	limiter        *rate.Limiter
	maxUploadBytes int64
	jobCtx         context.Context
	now            func() time.Time
	logger         *slog.Logger
}

type Options struct {
	// UploadsPerMinute bounds accepted uploads across all clients.
	UploadsPerMinute int
	MaxUploadBytes   int64
}

// NewHandlers wires the HTTP surface. Background jobs run under jobCtx, not
// the request context, so they outlive the upload request.
func NewHandlers(jobCtx context.Context, registry jobs.Registry, starter JobStarter, store *storage.Local, opts Options, logger *slog.Logger) *Handlers {
	perMinute := opts.UploadsPerMinute
	if perMinute < 1 {
		perMinute = 10
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}

	return &Handlers{
		registry:       registry,
		starter:        starter,
		store:          store,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		maxUploadBytes: maxBytes,
		jobCtx:         jobCtx,
		now:            time.Now,
		logger:         logger.With("component", "api"),
	}
}

type UploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// Upload stages the multipart "file" field and starts a job for it.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("Error getting file: %v", err))
		return
	}
	defer file.Close()

	if _, err := sheet.DetectFormat(header.Filename); err != nil {
		h.respondError(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	// Only well-formed uploads spend a token.
	if !h.limiter.Allow() {
		h.respondError(w, http.StatusTooManyRequests, "Too many uploads, try again later")
		return
	}

	job, err := h.registry.Create(header.Filename)
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	path, err := h.store.StageUpload(job.JobID, header.Filename, file)
	if err != nil {
		h.logger.Error("failed to stage upload", "job_id", job.JobID, "error", err)
		if _, uerr := h.registry.Update(job.JobID, func(s *models.JobState) {
			s.Status = models.JobStatusFailed
			s.Error = err.Error()
		}); uerr != nil {
			h.logger.Error("failed to mark job failed", "job_id", job.JobID, "error", uerr)
		}
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Error saving file: %v", err))
		return
	}

	h.logger.Info("job accepted", "job_id", job.JobID, "file_name", header.Filename)
	h.starter.Start(h.jobCtx, jobs.Job{ID: job.JobID, InputPath: path})

	h.respondJSON(w, http.StatusOK, UploadResponse{JobID: job.JobID, Message: uploadAccepted})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, job.View(h.now()))
}

type notCompletedResponse struct {
	Error              string  `json:"error"`
	Processed          int     `json:"processed"`
	Total              int     `json:"total"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	if job.Status != models.JobStatusCompleted {
		h.respondJSON(w, http.StatusBadRequest, notCompletedResponse{
			Error:              fmt.Sprintf("Job is not completed. Current status: %s", job.Status),
			Processed:          job.Processed,
			Total:              job.Total,
			ProgressPercentage: job.ProgressPercentage(),
		})
		return
	}

	if job.OutputLocation == "" || !storage.Exists(job.OutputLocation) {
		h.logger.Error("output file missing for completed job", "job_id", job.JobID, "path", job.OutputLocation)
		h.respondError(w, http.StatusNotFound, "Output file not found")
		return
	}

	name := fmt.Sprintf("amazon_results_%s%s", job.JobID, filepath.Ext(job.OutputLocation))
	w.Header().Set("Content-Type", storage.ContentType(job.OutputLocation))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, job.OutputLocation)
}

// JobList renders as a JSON object keyed by job id, oldest job first.
type JobList []models.JobState

func (l JobList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, job := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(job.JobID)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(job.Summary())
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, JobList(h.registry.List()))
}

type HealthResponse struct {
	Status string         `json:"status"`
	Jobs   map[string]int `json:"jobs"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{
		string(models.JobStatusProcessing): 0,
		string(models.JobStatusCompleted):  0,
		string(models.JobStatusFailed):     0,
	}
	for _, job := range h.registry.List() {
		counts[string(job.Status)]++
	}
	h.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Jobs: counts})
}

func (h *Handlers) lookupJob(w http.ResponseWriter, r *http.Request) (models.JobState, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.registry.Get(jobID)
	if err != nil {
		if !errors.Is(err, jobs.ErrJobNotFound) {
			h.logger.Error("failed to get job", "job_id", jobID, "error", err)
		}
		h.respondError(w, http.StatusNotFound, "Job not found")
		return models.JobState{}, false
	}
	return job, true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
