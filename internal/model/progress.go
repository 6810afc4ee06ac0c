package model

// Progress represents the estimated completion state of a running job
type Progress struct {
	ProgressPct float64 `json:"progress_pct"`
	RemainingS  float64 `json:"remaining_s"`
}
