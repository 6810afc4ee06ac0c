package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// IndexFileName is the on-disk run-directory index, kept directly
// under the runs root
const IndexFileName = "_run_paths.json"

// ErrRunDirNotFound is returned when a run id resolves to no existing
// directory through any lookup path
var ErrRunDirNotFound = errors.New("run directory not found")

// RunDirs maps run ids to their output directories and persists the
// mapping to a JSON index so runs stay resolvable across process
// restarts. Index values are slash-relative paths under the runs root;
// every rewrite goes through a temp file and an atomic rename.
type RunDirs struct {
	logger *slog.Logger

	mu   sync.Mutex
	root string
	dirs map[string]string // run id -> absolute path
}

// NewRunDirs creates an unconfigured registry
func NewRunDirs(logger *slog.Logger) *RunDirs {
	return &RunDirs{
		logger: logger,
		dirs:   make(map[string]string),
	}
}

// Configure sets the runs root (created if missing), loads the
// persisted index and keeps only entries whose directory still exists.
// A missing or corrupt index file is treated as empty.
func (r *RunDirs) Configure(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve runs root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create runs root: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.root = abs
	r.dirs = make(map[string]string)
	for runID, rel := range r.readIndex() {
		dir := filepath.Join(abs, filepath.FromSlash(rel))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.dirs[runID] = dir
		}
	}

	r.logger.Info("run directory registry configured",
		slog.String("root", abs),
		slog.Int("entries", len(r.dirs)),
	)

	return nil
}

// Root returns the configured runs root
func (r *RunDirs) Root() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

// Record stores the directory for a run and rewrites the index. A
// failed index write leaves the in-memory mapping authoritative for
// the current process lifetime.
func (r *RunDirs) Record(runID, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dirs[runID] = dir
	if err := r.writeIndex(); err != nil {
		r.logger.Warn("failed to persist run directory index",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

// Forget drops a run from the registry, deleting the index file
// entirely once it holds no entries
func (r *RunDirs) Forget(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.dirs, runID)
	if len(r.dirs) == 0 {
		if err := os.Remove(r.indexPath()); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove run directory index",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := r.writeIndex(); err != nil {
		r.logger.Warn("failed to persist run directory index",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

// Resolve finds a run's directory: in-memory map first, then a reload
// of the persisted index, then the legacy <root>/<runID> layout. The
// first path that exists on disk is cached back and returned.
func (r *RunDirs) Resolve(runID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir, ok := r.dirs[runID]; ok {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}

	if rel, ok := r.readIndex()[runID]; ok {
		dir := filepath.Join(r.root, filepath.FromSlash(rel))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.dirs[runID] = dir
			return dir, nil
		}
	}

	legacy := filepath.Join(r.root, runID)
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		r.dirs[runID] = legacy
		return legacy, nil
	}

	return "", fmt.Errorf("%w: %s", ErrRunDirNotFound, runID)
}

func (r *RunDirs) indexPath() string {
	return filepath.Join(r.root, IndexFileName)
}

// readIndex loads the persisted index, degrading to empty on any read
// or parse failure
func (r *RunDirs) readIndex() map[string]string {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		return map[string]string{}
	}

	var index map[string]string
	if err := json.Unmarshal(data, &index); err != nil {
		r.logger.Warn("corrupt run directory index, treating as empty",
			slog.String("error", err.Error()),
		)
		return map[string]string{}
	}
	return index
}

// writeIndex rewrites the index with relative paths, going through a
// temp file in the same directory and an atomic rename so a crash can
// never leave a partial file behind
func (r *RunDirs) writeIndex() error {
	index := make(map[string]string, len(r.dirs))
	for runID, dir := range r.dirs {
		rel, err := filepath.Rel(r.root, dir)
		if err != nil || rel == "." {
			// Legacy or unsanitized entries outside the root keep
			// their absolute path.
			rel = dir
		}
		index[runID] = filepath.ToSlash(rel)
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := r.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.indexPath()); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
