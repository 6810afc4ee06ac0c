package hardware

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrAborted is returned by the simulator when a measurement is
// aborted before running to completion
var ErrAborted = errors.New("measurement aborted")

// Simulator is a software potentiostat controller. The default binary
// runs on it when no hardware driver is wired in, and the tests use it
// to drive the job engine without hardware.
type Simulator struct {
	channels []Channel
	step     time.Duration
	fallback time.Duration

	mu      sync.Mutex
	running map[int]chan struct{} // channel index -> abort signal
	failure map[int]error         // injected Apply failures
}

// SimulatorOption configures a Simulator
type SimulatorOption func(*Simulator)

// WithStep sets the supervisor-visible granularity of simulated
// measurements: the abort flag is checked once per step.
func WithStep(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.step = d }
}

// WithFallbackDuration sets the measurement duration used when the
// submitted parameters carry no duration_s value
func WithFallbackDuration(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.fallback = d }
}

// WithFailure makes Apply on the given channel fail with err after its
// simulated measurement time has elapsed
func WithFailure(channel int, err error) SimulatorOption {
	return func(s *Simulator) { s.failure[channel] = err }
}

// NewSimulator creates a simulator exposing the given number of
// channels, enumerated in a stable order.
func NewSimulator(channels int, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		step:     50 * time.Millisecond,
		fallback: time.Second,
		running:  make(map[int]chan struct{}),
		failure:  make(map[int]error),
	}
	for i := 0; i < channels; i++ {
		s.channels = append(s.channels, Channel{
			Index:        i,
			Port:         fmt.Sprintf("/dev/ttySIM%d", i),
			SerialNumber: fmt.Sprintf("SIM-%04d", i+1),
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channels enumerates the simulated channels
func (s *Simulator) Channels() ([]Channel, error) {
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out, nil
}

// Modes lists the supported measurement modes
func (s *Simulator) Modes() []string {
	return []string{"CV", "CA", "OCP", "EIS"}
}

// ModeParams describes the accepted parameters per mode
func (s *Simulator) ModeParams(mode string) (map[string]ParamSpec, error) {
	switch mode {
	case "CV":
		return map[string]ParamSpec{
			"start_v":   {Type: "float", Unit: "V", Default: -0.5, Required: true},
			"vertex_v":  {Type: "float", Unit: "V", Default: 0.5, Required: true},
			"scan_rate": {Type: "float", Unit: "V/s", Default: 0.1, Required: true},
			"cycles":    {Type: "int", Default: 3, Required: false},
		}, nil
	case "CA":
		return map[string]ParamSpec{
			"step_v":     {Type: "float", Unit: "V", Default: 0.2, Required: true},
			"duration_s": {Type: "float", Unit: "s", Default: 60.0, Required: true},
		}, nil
	case "OCP":
		return map[string]ParamSpec{
			"duration_s": {Type: "float", Unit: "s", Default: 30.0, Required: true},
		}, nil
	case "EIS":
		return map[string]ParamSpec{
			"freq_start_hz": {Type: "float", Unit: "Hz", Default: 100000.0, Required: true},
			"freq_end_hz":   {Type: "float", Unit: "Hz", Default: 0.1, Required: true},
			"amplitude_v":   {Type: "float", Unit: "V", Default: 0.01, Required: true},
		}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// Apply runs one simulated measurement: it blocks for the measurement
// duration in abort-checkable steps, then writes the CSV result file.
func (s *Simulator) Apply(channel int, m Measurement) error {
	abort := make(chan struct{})

	s.mu.Lock()
	if _, busy := s.running[channel]; busy {
		s.mu.Unlock()
		return fmt.Errorf("channel %d already measuring", channel)
	}
	s.running[channel] = abort
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, channel)
		s.mu.Unlock()
	}()

	total := s.measurementDuration(m)
	deadline := time.Now().Add(total)
	for time.Now().Before(deadline) {
		select {
		case <-abort:
			return ErrAborted
		case <-time.After(s.step):
		}
	}

	select {
	case <-abort:
		return ErrAborted
	default:
	}

	if err := s.failure[channel]; err != nil {
		return err
	}

	return writeRamp(filepath.Join(m.Folder, m.Filename), total)
}

// Abort requests a best-effort abort of the measurement on a channel.
// An idle channel is not an error.
func (s *Simulator) Abort(channel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if abort, ok := s.running[channel]; ok {
		select {
		case <-abort:
		default:
			close(abort)
		}
	}
	return nil
}

// measurementDuration derives the simulated runtime from duration_s
// when present, falling back to the configured default
func (s *Simulator) measurementDuration(m Measurement) time.Duration {
	if v, ok := m.Params["duration_s"]; ok {
		switch d := v.(type) {
		case float64:
			return time.Duration(d * float64(time.Second))
		case int:
			return time.Duration(d) * time.Second
		}
	}
	return s.fallback
}

// writeRamp writes a small triangular voltage ramp as the CSV result
func writeRamp(path string, total time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("t_s,voltage_v,current_a\n")
	steps := 50
	for i := 0; i <= steps; i++ {
		t := total.Seconds() * float64(i) / float64(steps)
		v := 1 - math.Abs(float64(2*i)/float64(steps)-1)
		fmt.Fprintf(&b, "%.4f,%.4f,%.6e\n", t, v, v*1e-6)
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
