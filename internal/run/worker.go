package run

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/LunatiChemist/seva-box/internal/hardware"
	"github.com/LunatiChemist/seva-box/internal/model"
)

// runSlot drives exactly one measurement to completion or
// cancellation and writes exactly one terminal slot status. It runs on
// its own goroutine; the blocking hardware call runs on an inner
// goroutine it supervises.
func (s *Service) runSlot(runID, slot, runDir string, req model.JobRequest, flag *cancelFlag) {
	defer s.workers.Done()

	log := s.logger.With(
		slog.String("run_id", runID),
		slog.String("slot", slot),
	)

	// A cancel that landed before this worker was scheduled: finalize
	// without ever touching the hardware.
	if flag.IsSet() {
		s.finalizeSlot(runID, slot, model.StatusCancelled, "cancelled", []string{})
		return
	}

	if !s.markSlotRunning(runID, slot) {
		// The cancel endpoint finalized this slot between spawn and
		// scheduling; its reservation is already released.
		return
	}

	channel, ok := s.devices.ChannelIndex(slot)
	if !ok {
		s.finalizeSlot(runID, slot, model.StatusFailed, fmt.Sprintf("slot %s no longer known", slot), []string{})
		return
	}

	slotDir := filepath.Join(runDir, slot)
	if err := os.MkdirAll(slotDir, 0o755); err != nil {
		s.finalizeSlot(runID, slot, model.StatusFailed, err.Error(), []string{})
		return
	}

	m := hardware.Measurement{
		Mode:             req.Mode,
		Params:           req.Params,
		TIAGain:          req.TIAGain,
		SamplingInterval: req.SamplingInterval,
		Filename:         fmt.Sprintf("%s_%s.csv", slot, req.Mode),
		Folder:           slotDir,
	}

	// Inner worker hosts the blocking, non-cancellable hardware call.
	done := make(chan error, 1)
	go func() {
		done <- s.controller.Apply(channel, m)
	}()

	// Supervisor loop: wait for the inner worker on a short renewable
	// timeout; on a tripped cancellation flag request one best-effort
	// abort and keep waiting for natural completion. The inner worker
	// is never force-killed.
	var applyErr error
	aborted := false
	for running := true; running; {
		select {
		case applyErr = <-done:
			running = false
		case <-time.After(s.poll):
			if flag.IsSet() && !aborted {
				s.tryAbort(channel, log)
				aborted = true
			}
		}
	}

	files := listResultFiles(runDir, slot)

	switch {
	case flag.IsSet():
		// A cancellation in flight masks any hardware error: the
		// slot reports cancelled regardless of how the call ended.
		if applyErr != nil {
			log.Debug("hardware error masked by cancellation",
				slog.String("error", applyErr.Error()),
			)
		}
		s.finalizeSlot(runID, slot, model.StatusCancelled, "cancelled", files)
	case applyErr != nil:
		log.Warn("measurement failed",
			slog.String("error", applyErr.Error()),
		)
		s.finalizeSlot(runID, slot, model.StatusFailed, applyErr.Error(), files)
	default:
		s.requestPlot(req, slotDir, m.Filename, log)
		// Re-list so a rendered plot shows up next to the CSV.
		files = listResultFiles(runDir, slot)
		s.finalizeSlot(runID, slot, model.StatusDone, "", files)
	}
}

// markSlotRunning flips a queued slot to running under the job lock.
// It reports false when the slot already reached a terminal status.
func (s *Service) markSlotRunning(runID, slot string) bool {
	s.mu.Lock()
	job, ok := s.jobs[runID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	for i := range job.Slots {
		if job.Slots[i].Slot != slot {
			continue
		}
		if model.IsTerminalSlotStatus(job.Slots[i].Status) {
			s.mu.Unlock()
			return false
		}
		now := time.Now().UTC()
		job.Slots[i].Status = model.StatusRunning
		job.Slots[i].StartedAt = &now
		s.mu.Unlock()
		s.aggregate(runID)
		return true
	}
	s.mu.Unlock()
	return false
}

// finalizeSlot writes a slot's terminal status (idempotent: an already
// terminal slot is left untouched), releases its reservation and
// triggers job aggregation.
func (s *Service) finalizeSlot(runID, slot, status, message string, files []string) {
	if files == nil {
		files = []string{}
	}

	s.mu.Lock()
	if job, ok := s.jobs[runID]; ok {
		now := time.Now().UTC()
		for i := range job.Slots {
			if job.Slots[i].Slot != slot {
				continue
			}
			if model.IsTerminalSlotStatus(job.Slots[i].Status) {
				break
			}
			if job.Slots[i].StartedAt == nil {
				job.Slots[i].StartedAt = &now
			}
			job.Slots[i].Status = status
			job.Slots[i].EndedAt = &now
			job.Slots[i].Message = message
			job.Slots[i].Files = files
			break
		}
	}
	s.mu.Unlock()

	s.slots.Release(slot, runID)
	s.aggregate(runID)
}

// tryAbort issues the one best-effort abort: an Aborter capability
// first, then forcibly closing the channel's port. Failures are
// swallowed; the measurement may still run to completion.
func (s *Service) tryAbort(channel int, log *slog.Logger) {
	if aborter, ok := s.controller.(hardware.Aborter); ok {
		if err := aborter.Abort(channel); err != nil {
			log.Debug("abort request failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if closer, ok := s.controller.(hardware.PortCloser); ok {
		if err := closer.ClosePort(channel); err != nil {
			log.Debug("port close failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	log.Debug("controller has no abort capability")
}

// requestPlot asks the plotter for a rendering of the result file.
// CV-family parameter sets get a per-cycle plot, everything else a
// time series. Best-effort: plot errors are logged and dropped.
func (s *Service) requestPlot(req model.JobRequest, slotDir, filename string, log *slog.Logger) {
	if !req.MakePlot {
		return
	}

	csv := filepath.Join(slotDir, filename)
	png := csv[:len(csv)-len(filepath.Ext(csv))] + ".png"

	var err error
	if cycles, ok := intParam(req.Params["cycles"]); ok && cycles > 0 {
		err = s.plotter.PlotCycles(csv, png, cycles)
	} else {
		err = s.plotter.PlotTimeSeries(csv, png)
	}
	if err != nil {
		log.Warn("plot request failed",
			slog.String("error", err.Error()),
		)
	}
}

// listResultFiles enumerates every file in a slot's output
// subdirectory, sorted, slash-relative to the run directory.
// Best-effort: any failure degrades to an empty list.
func listResultFiles(runDir, slot string) []string {
	files := []string{}
	slotDir := filepath.Join(runDir, slot)
	_ = filepath.WalkDir(slotDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(runDir, path); relErr == nil {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func intParam(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
