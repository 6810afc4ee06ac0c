package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LunatiChemist/seva-box/internal/run"
)

// ListDevices handles GET /devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Devices())
}

// ListModes handles GET /modes
func (h *Handler) ListModes(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Modes())
}

// GetModeParams handles GET /modes/{mode}/params
func (h *Handler) GetModeParams(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")

	params, err := h.service.ModeParams(mode)
	if err != nil {
		if errors.Is(err, run.ErrUnknownMode) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to get mode params")
		return
	}

	h.respondJSON(w, http.StatusOK, params)
}

// Rescan handles POST /admin/rescan
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.Rescan()
	if err != nil {
		h.logger.Error("device rescan failed",
			slog.String("error", err.Error()),
		)
		h.respondError(w, http.StatusInternalServerError, "device rescan failed")
		return
	}

	h.respondJSON(w, http.StatusOK, devices)
}
