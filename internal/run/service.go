package run

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LunatiChemist/seva-box/internal/archive"
	"github.com/LunatiChemist/seva-box/internal/cache"
	"github.com/LunatiChemist/seva-box/internal/hardware"
	"github.com/LunatiChemist/seva-box/internal/model"
	"github.com/LunatiChemist/seva-box/internal/plot"
	"github.com/LunatiChemist/seva-box/internal/progress"
	"github.com/LunatiChemist/seva-box/internal/registry"
)

// cancelFlag is the per-run cancellation signal. Workers hold a direct
// reference, so dropping the flag from the registry on job completion
// never races an in-flight worker.
type cancelFlag struct {
	set atomic.Bool
}

func (c *cancelFlag) Set()        { c.set.Store(true) }
func (c *cancelFlag) IsSet() bool { return c.set.Load() }

// runMeta is the ephemeral per-run metadata kept in the cache while a
// job is active
type runMeta struct {
	Request  model.JobRequest
	PlannedS float64
}

// Service is the job orchestration engine. It owns every shared map
// and its guarding lock; handlers get it injected and hold no state of
// their own.
//
// Three independent locks, never nested: the device registry's, the
// slot reservation table's, and the job lock below.
type Service struct {
	devices    *registry.Devices
	slots      *registry.Slots
	runDirs    *registry.RunDirs
	controller hardware.Controller
	plotter    plot.Plotter
	estimator  progress.Estimator
	meta       cache.Cache
	metaTTL    time.Duration
	poll       time.Duration
	logger     *slog.Logger

	mu      sync.Mutex // job lock
	jobs    map[string]*model.JobStatus
	cancels map[string]*cancelFlag

	workers sync.WaitGroup
}

// Options carries the collaborators and tunables of a Service
type Options struct {
	Devices      *registry.Devices
	Slots        *registry.Slots
	RunDirs      *registry.RunDirs
	Controller   hardware.Controller
	Plotter      plot.Plotter
	Estimator    progress.Estimator
	Meta         cache.Cache
	MetaTTL      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewService creates the orchestration service
func NewService(opts Options) *Service {
	if opts.Plotter == nil {
		opts.Plotter = plot.Discard{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.MetaTTL <= 0 {
		opts.MetaTTL = 24 * time.Hour
	}
	return &Service{
		devices:    opts.Devices,
		slots:      opts.Slots,
		runDirs:    opts.RunDirs,
		controller: opts.Controller,
		plotter:    opts.Plotter,
		estimator:  opts.Estimator,
		meta:       opts.Meta,
		metaTTL:    opts.MetaTTL,
		poll:       opts.PollInterval,
		logger:     opts.Logger,
		jobs:       make(map[string]*model.JobStatus),
		cancels:    make(map[string]*cancelFlag),
	}
}

// Start admits a job: resolves and reserves its slots atomically,
// creates the run directory and all bookkeeping, and launches one
// worker per slot. Any failure after reservation rolls everything
// back; no partial holds survive a failed start.
func (s *Service) Start(req model.JobRequest) (*model.JobStatus, error) {
	slots, err := s.resolveSlots(req.Devices)
	if err != nil {
		return nil, err
	}

	runID := req.RunName
	if runID == "" {
		runID = generateRunID()
	}

	now := time.Now().UTC()
	job := &model.JobStatus{
		RunID:     runID,
		Mode:      req.Mode,
		StartedAt: now,
		Status:    model.StatusRunning,
	}
	for _, slot := range slots {
		job.Slots = append(job.Slots, model.SlotStatus{
			Slot:   slot,
			Status: model.StatusQueued,
			Files:  []string{},
		})
	}
	flag := &cancelFlag{}

	s.mu.Lock()
	if _, exists := s.jobs[runID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunConflict, runID)
	}
	s.jobs[runID] = job
	s.cancels[runID] = flag
	s.mu.Unlock()

	if busy := s.slots.ReserveAll(slots, runID); len(busy) > 0 {
		s.dropJob(runID)
		return nil, fmt.Errorf("%w: %s", ErrSlotsBusy, strings.Join(busy, ", "))
	}

	runDir, err := s.createRunDir(runID, req.FolderName)
	if err != nil {
		s.rollback(runID)
		return nil, err
	}
	s.runDirs.Record(runID, runDir)

	plannedS := s.estimator.PlannedDuration(req.Mode, req.Params)
	s.meta.Set(runID, runMeta{Request: req, PlannedS: plannedS}, s.metaTTL)

	s.logger.Info("job admitted",
		slog.String("run_id", runID),
		slog.String("mode", req.Mode),
		slog.Int("slots", len(slots)),
		slog.Float64("planned_s", plannedS),
	)

	for _, slot := range slots {
		s.workers.Add(1)
		go s.runSlot(runID, slot, runDir, req, flag)
	}

	return s.Status(runID)
}

// resolveSlots expands the device selector against the current device
// registry: "all" selects every known slot sorted, an explicit list is
// deduplicated and filtered to known slots.
func (s *Service) resolveSlots(sel model.DeviceSelector) ([]string, error) {
	if sel.All {
		var slots []string
		for _, dev := range s.devices.List() {
			slots = append(slots, dev.Slot)
		}
		if len(slots) == 0 {
			return nil, ErrNoValidDevices
		}
		return slots, nil
	}

	seen := make(map[string]bool)
	var slots []string
	for _, slot := range sel.Slots {
		if seen[slot] || !s.devices.Known(slot) {
			continue
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return nil, ErrNoValidDevices
	}
	return slots, nil
}

// createRunDir builds <root>/[folder/]<runID>, sanitizing both
// user-supplied components to single path elements
func (s *Service) createRunDir(runID, folder string) (string, error) {
	dir := s.runDirs.Root()
	if folder != "" {
		dir = filepath.Join(dir, filepath.Base(folder))
	}
	dir = filepath.Join(dir, filepath.Base(runID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}

// dropJob removes a job's bookkeeping without touching reservations
func (s *Service) dropJob(runID string) {
	s.mu.Lock()
	delete(s.jobs, runID)
	delete(s.cancels, runID)
	s.mu.Unlock()
	s.meta.Delete(runID)
}

// rollback undoes a partially admitted job: every slot reserved for
// the run is released and all bookkeeping removed
func (s *Service) rollback(runID string) {
	s.slots.ReleaseRun(runID)
	s.dropJob(runID)
	s.runDirs.Forget(runID)
}

// Status returns a consistent snapshot of one job
func (s *Service) Status(runID string) (*model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return s.snapshotLocked(job), nil
}

// BulkStatus returns snapshots for every requested run, failing with
// ErrRunNotFound naming the first unknown id
func (s *Service) BulkStatus(runIDs []string) ([]*model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.JobStatus, 0, len(runIDs))
	for _, runID := range runIDs {
		job, ok := s.jobs[runID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		out = append(out, s.snapshotLocked(job))
	}
	return out, nil
}

// List returns snapshots of every job in memory, newest first
func (s *Service) List() []*model.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, s.snapshotLocked(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// snapshotLocked deep-copies a job and enriches it with estimated
// progress. Caller holds the job lock.
func (s *Service) snapshotLocked(job *model.JobStatus) *model.JobStatus {
	snap := *job
	snap.Slots = make([]model.SlotStatus, len(job.Slots))
	copy(snap.Slots, job.Slots)
	if job.EndedAt != nil {
		ended := *job.EndedAt
		snap.EndedAt = &ended
	}
	for i := range snap.Slots {
		files := make([]string, len(job.Slots[i].Files))
		copy(files, job.Slots[i].Files)
		snap.Slots[i].Files = files
	}

	plannedS := 0.0
	if v, ok := s.meta.Get(job.RunID); ok {
		if meta, ok := v.(runMeta); ok {
			plannedS = meta.PlannedS
		}
	}
	p := s.estimator.Snapshot(snap.Status, snap.Slots, snap.StartedAt, plannedS)
	snap.ProgressPct = &p.ProgressPct
	snap.RemainingS = &p.RemainingS

	return &snap
}

// aggregate recomputes a job's status from its slots and, on a
// terminal result, stamps endedAt and drops the run's metadata and
// cancellation flag.
func (s *Service) aggregate(runID string) {
	s.mu.Lock()
	job, ok := s.jobs[runID]
	if !ok {
		s.mu.Unlock()
		return
	}

	status := model.AggregateSlotStatuses(job.Slots)
	job.Status = status
	if status == model.StatusRunning {
		job.EndedAt = nil
		s.mu.Unlock()
		return
	}

	if job.EndedAt == nil {
		ended := time.Now().UTC()
		job.EndedAt = &ended
	}
	delete(s.cancels, runID)
	s.mu.Unlock()

	s.meta.Delete(runID)
	s.logger.Info("job finished",
		slog.String("run_id", runID),
		slog.String("status", status),
	)
}

// Cancel requests cancellation of a run. Idempotent: a terminal job
// returns its current status untouched. Slots still queued are
// finalized immediately; running slots are left to their workers'
// supervision, which this call does not wait for.
func (s *Service) Cancel(runID string) (string, error) {
	s.mu.Lock()
	job, ok := s.jobs[runID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if job.Terminal() {
		status := job.Status
		s.mu.Unlock()
		return status, nil
	}

	if flag, ok := s.cancels[runID]; ok {
		flag.Set()
	}

	// Finalize slots whose workers have not started yet, so a cancel
	// racing a just-spawned worker cannot strand them in queued.
	var released []string
	now := time.Now().UTC()
	for i := range job.Slots {
		if job.Slots[i].Status == model.StatusQueued {
			job.Slots[i].Status = model.StatusCancelled
			job.Slots[i].StartedAt = &now
			job.Slots[i].EndedAt = &now
			job.Slots[i].Message = "cancelled"
			job.Slots[i].Files = []string{}
			released = append(released, job.Slots[i].Slot)
		}
	}
	s.mu.Unlock()

	for _, slot := range released {
		s.slots.Release(slot, runID)
	}
	s.aggregate(runID)

	s.logger.Info("job cancellation requested",
		slog.String("run_id", runID),
		slog.Int("finalized_queued", len(released)),
	)

	s.mu.Lock()
	status := s.jobs[runID].Status
	s.mu.Unlock()
	return status, nil
}

// Devices returns the device registry's current view, sorted
func (s *Service) Devices() []model.DeviceSlot {
	return s.devices.List()
}

// Rescan re-runs device discovery
func (s *Service) Rescan() ([]model.DeviceSlot, error) {
	if _, err := s.devices.Discover(); err != nil {
		return nil, err
	}
	return s.devices.List(), nil
}

// Modes lists the controller's measurement modes
func (s *Service) Modes() []string {
	return s.controller.Modes()
}

// ModeParams describes a mode's accepted parameters
func (s *Service) ModeParams(mode string) (map[string]hardware.ParamSpec, error) {
	params, err := s.controller.ModeParams(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	return params, nil
}

// ZipRun builds an in-memory ZIP of a run's output directory
func (s *Service) ZipRun(runID string) ([]byte, error) {
	dir, err := s.runDirs.Resolve(runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return archive.ZipDir(dir)
}

// Drain blocks until every slot worker has finished
func (s *Service) Drain() {
	s.workers.Wait()
}

// generateRunID builds <UTC timestamp>_<6-hex-random>
func generateRunID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return time.Now().UTC().Format("20060102T150405") + "_" + suffix
}
