package model

// Slot and job status values
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IsTerminalSlotStatus reports whether a slot status value is final.
// Terminal slot statuses never change once written.
func IsTerminalSlotStatus(status string) bool {
	switch status {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AggregateSlotStatuses derives the job-level status from its slots:
// any slot still queued or running keeps the job running; otherwise a
// failed slot wins over a cancelled one, which wins over done.
func AggregateSlotStatuses(slots []SlotStatus) string {
	anyFailed := false
	anyCancelled := false
	for _, s := range slots {
		switch s.Status {
		case StatusQueued, StatusRunning:
			return StatusRunning
		case StatusFailed:
			anyFailed = true
		case StatusCancelled:
			anyCancelled = true
		}
	}
	if anyFailed {
		return StatusFailed
	}
	if anyCancelled {
		return StatusCancelled
	}
	return StatusDone
}
