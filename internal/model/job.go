package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceSelector is the "devices" field of a job request: either the
// literal string "all" or an explicit list of slot labels
type DeviceSelector struct {
	All   bool
	Slots []string
}

// UnmarshalJSON accepts "all" or a JSON array of slot labels
func (d *DeviceSelector) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("devices: expected \"all\" or a list, got %q", s)
		}
		d.All = true
		d.Slots = nil
		return nil
	}

	var slots []string
	if err := json.Unmarshal(data, &slots); err != nil {
		return fmt.Errorf("devices: expected \"all\" or a list of slot labels")
	}
	d.All = false
	d.Slots = slots
	return nil
}

// MarshalJSON renders the selector back to its wire form
func (d DeviceSelector) MarshalJSON() ([]byte, error) {
	if d.All {
		return json.Marshal("all")
	}
	return json.Marshal(d.Slots)
}

// JobRequest represents a measurement job submission. It is immutable
// once admitted.
type JobRequest struct {
	Devices          DeviceSelector `json:"devices"`
	Mode             string         `json:"mode"`
	Params           map[string]any `json:"params"`
	TIAGain          *int           `json:"tia_gain,omitempty"`
	SamplingInterval *float64       `json:"sampling_interval,omitempty"`
	RunName          string         `json:"run_name,omitempty"`
	FolderName       string         `json:"folder_name,omitempty"`
	MakePlot         bool           `json:"make_plot"`
}

// SlotStatus represents the state of one reserved slot within a run.
// It is owned by the slot's worker while active and read under the job
// lock by everyone else.
type SlotStatus struct {
	Slot      string     `json:"slot"`
	Status    string     `json:"status"` // queued | running | done | failed | cancelled
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Message   string     `json:"message,omitempty"`
	Files     []string   `json:"files"`
}

// JobStatus represents the aggregate state of a run. Status is always
// derived from the child slot statuses, never set independently.
type JobStatus struct {
	RunID       string       `json:"run_id"`
	Mode        string       `json:"mode"`
	StartedAt   time.Time    `json:"started_at"`
	Status      string       `json:"status"` // running | done | failed | cancelled
	EndedAt     *time.Time   `json:"ended_at,omitempty"`
	Slots       []SlotStatus `json:"slots"`
	ProgressPct *float64     `json:"progress_pct,omitempty"`
	RemainingS  *float64     `json:"remaining_s,omitempty"`
}

// Terminal reports whether the job has reached a final status
func (j *JobStatus) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed || j.Status == StatusCancelled
}
