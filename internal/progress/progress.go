package progress

import (
	"time"

	"github.com/LunatiChemist/seva-box/internal/model"
)

// Estimator produces planned-duration estimates at job admission and
// progress/ETA snapshots while a job runs. Results are display hints
// only and never influence orchestration.
type Estimator interface {
	PlannedDuration(mode string, params map[string]any) float64
	Snapshot(status string, slots []model.SlotStatus, startedAt time.Time, plannedS float64) model.Progress
}

// Linear is the default estimator: planned duration straight from the
// submitted parameters, progress as clamped elapsed/planned.
type Linear struct {
	// Fallback is the planned duration reported when the parameters
	// carry no usable timing information
	Fallback time.Duration
}

// PlannedDuration estimates expected runtime in seconds from
// well-known parameter keys: an explicit duration_s wins, a CV-shaped
// parameter set (cycles, scan_rate, vertex span) is integrated, and
// anything else falls back to the configured default.
func (l Linear) PlannedDuration(mode string, params map[string]any) float64 {
	if d, ok := number(params["duration_s"]); ok && d > 0 {
		return d
	}

	cycles, haveCycles := number(params["cycles"])
	rate, haveRate := number(params["scan_rate"])
	start, haveStart := number(params["start_v"])
	vertex, haveVertex := number(params["vertex_v"])
	if haveCycles && haveRate && haveStart && haveVertex && rate > 0 && cycles > 0 {
		span := vertex - start
		if span < 0 {
			span = -span
		}
		return cycles * 2 * span / rate
	}

	return l.Fallback.Seconds()
}

// Snapshot derives display progress for a job. Terminal jobs report
// 100% with nothing remaining; running jobs report clamped linear
// progress against the planned duration.
func (l Linear) Snapshot(status string, slots []model.SlotStatus, startedAt time.Time, plannedS float64) model.Progress {
	if status != model.StatusRunning {
		return model.Progress{ProgressPct: 100, RemainingS: 0}
	}
	if plannedS <= 0 {
		return model.Progress{}
	}

	elapsed := time.Since(startedAt).Seconds()
	pct := elapsed / plannedS * 100
	if pct > 99 {
		// A running job never shows complete.
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}

	remaining := plannedS - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return model.Progress{ProgressPct: pct, RemainingS: remaining}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
