package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LunatiChemist/seva-box/internal/run"
)

// GetRunZip handles GET /runs/{run_id}/zip with an in-memory archive
// of the run directory
func (h *Handler) GetRunZip(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")

	data, err := h.service.ZipRun(runID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to build run archive",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		h.respondError(w, http.StatusInternalServerError, "failed to build run archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+".zip"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write run archive",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}
