package hardware

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorChannels(t *testing.T) {
	sim := NewSimulator(3)

	channels, err := sim.Channels()
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Equal(t, 0, channels[0].Index)
	assert.Equal(t, "/dev/ttySIM0", channels[0].Port)
	assert.Equal(t, "SIM-0001", channels[0].SerialNumber)
}

func TestSimulatorModeParams(t *testing.T) {
	sim := NewSimulator(1)

	params, err := sim.ModeParams("CV")
	require.NoError(t, err)
	assert.Contains(t, params, "scan_rate")

	_, err = sim.ModeParams("XRay")
	assert.Error(t, err)
}

func TestSimulatorApplyWritesResultFile(t *testing.T) {
	sim := NewSimulator(1, WithStep(time.Millisecond), WithFallbackDuration(5*time.Millisecond))
	dir := t.TempDir()

	err := sim.Apply(0, Measurement{
		Mode:     "CV",
		Params:   map[string]any{"duration_s": 0.01},
		Filename: "slot01_CV.csv",
		Folder:   filepath.Join(dir, "slot01"),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "slot01", "slot01_CV.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "t_s,voltage_v,current_a")
}

func TestSimulatorAbortInterruptsApply(t *testing.T) {
	sim := NewSimulator(1, WithStep(time.Millisecond))
	dir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- sim.Apply(0, Measurement{
			Mode:     "CA",
			Params:   map[string]any{"duration_s": 30.0},
			Filename: "out.csv",
			Folder:   dir,
		})
	}()

	require.Eventually(t, func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		_, running := sim.running[0]
		return running
	}, time.Second, time.Millisecond)

	require.NoError(t, sim.Abort(0))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("abort did not unblock the measurement")
	}

	// No result file on the aborted path.
	_, err := os.Stat(filepath.Join(dir, "out.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestSimulatorInjectedFailure(t *testing.T) {
	boom := errors.New("overcurrent")
	sim := NewSimulator(1,
		WithStep(time.Millisecond),
		WithFallbackDuration(2*time.Millisecond),
		WithFailure(0, boom),
	)

	err := sim.Apply(0, Measurement{Mode: "OCP", Filename: "o.csv", Folder: t.TempDir()})
	assert.ErrorIs(t, err, boom)
}

func TestSimulatorRejectsConcurrentApplyOnSameChannel(t *testing.T) {
	sim := NewSimulator(1, WithStep(time.Millisecond))
	dirA, dirB := t.TempDir(), t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- sim.Apply(0, Measurement{
			Mode:     "CA",
			Params:   map[string]any{"duration_s": 1.0},
			Filename: "a.csv",
			Folder:   dirA,
		})
	}()

	require.Eventually(t, func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		_, running := sim.running[0]
		return running
	}, time.Second, time.Millisecond)

	err := sim.Apply(0, Measurement{Mode: "CA", Filename: "b.csv", Folder: dirB})
	assert.Error(t, err)

	require.NoError(t, sim.Abort(0))
	<-done
}
