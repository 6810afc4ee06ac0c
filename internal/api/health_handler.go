package api

import "net/http"

// healthResponse is the GET /health payload
type healthResponse struct {
	OK      bool   `json:"ok"`
	Devices int    `json:"devices"`
	BoxID   string `json:"box_id"`
}

// GetHealth handles GET /health. It reads the device registry only,
// never the hardware, so it stays cheap to poll.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, healthResponse{
		OK:      true,
		Devices: len(h.service.Devices()),
		BoxID:   h.boxID,
	})
}
