package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LunatiChemist/seva-box/internal/model"
	"github.com/LunatiChemist/seva-box/internal/run"
)

// StartJob handles POST /jobs
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req model.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Mode == "" {
		h.respondError(w, http.StatusBadRequest, "mode is required")
		return
	}

	status, err := h.service.Start(req)
	if err != nil {
		switch {
		case errors.Is(err, run.ErrNoValidDevices):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, run.ErrRunConflict), errors.Is(err, run.ErrSlotsBusy):
			h.respondError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to start job",
				slog.String("mode", req.Mode),
				slog.String("error", err.Error()),
			)
			h.respondError(w, http.StatusInternalServerError, "failed to start job")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// ListJobs handles GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.List())
}

// GetJobStatus handles GET /jobs/{run_id}
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	status, err := h.service.Status(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, status)
}

// bulkStatusRequest is the POST /jobs/status payload
type bulkStatusRequest struct {
	RunIDs []string `json:"run_ids"`
}

// BulkJobStatus handles POST /jobs/status. All-or-nothing: one
// unknown run id fails the whole request with 404 naming it.
func (h *Handler) BulkJobStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	statuses, err := h.service.BulkStatus(req.RunIDs)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, statuses)
}

// cancelResponse is the POST /jobs/{run_id}/cancel payload
type cancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CancelJob handles POST /jobs/{run_id}/cancel. Returns 202: the
// cancellation is best-effort and running slots finish on their own
// workers' schedule.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	status, err := h.service.Cancel(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.respondJSON(w, http.StatusAccepted, cancelResponse{RunID: runID, Status: status})
}
