package run

import "errors"

// Admission and lookup errors, surfaced synchronously to HTTP
// handlers. Per-slot hardware errors never appear here: they are
// reported through SlotStatus.Message.
var (
	ErrNoValidDevices = errors.New("no valid devices selected")
	ErrRunConflict    = errors.New("run id already in use")
	ErrSlotsBusy      = errors.New("requested slots busy")
	ErrRunNotFound    = errors.New("unknown run id")
	ErrUnknownMode    = errors.New("unknown mode")
)
