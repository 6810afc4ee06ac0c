package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/LunatiChemist/seva-box/internal/hardware"
	"github.com/LunatiChemist/seva-box/internal/model"
)

// Devices maps stable slot labels to the channels a controller
// enumerates. The whole map is replaced atomically on every discovery,
// so readers never observe a partially rebuilt registry.
type Devices struct {
	controller hardware.Controller
	logger     *slog.Logger

	mu    sync.RWMutex
	slots map[string]model.DeviceSlot
}

// NewDevices creates an empty device registry for the given controller
func NewDevices(controller hardware.Controller, logger *slog.Logger) *Devices {
	return &Devices{
		controller: controller,
		logger:     logger,
		slots:      make(map[string]model.DeviceSlot),
	}
}

// Discover rebuilds the registry from the controller's current channel
// enumeration. Slots are numbered in enumeration order starting at 1.
// A channel whose metadata could not be resolved degrades to
// placeholder values instead of failing the discovery.
func (d *Devices) Discover() (map[string]model.DeviceSlot, error) {
	channels, err := d.controller.Channels()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate channels: %w", err)
	}

	rebuilt := make(map[string]model.DeviceSlot, len(channels))
	for i, ch := range channels {
		slot := SlotLabel(i + 1)
		port := ch.Port
		if port == "" {
			port = model.PortUnknown
		}
		rebuilt[slot] = model.DeviceSlot{
			Slot:         slot,
			Port:         port,
			SerialNumber: ch.SerialNumber,
		}
	}

	d.mu.Lock()
	d.slots = rebuilt
	d.mu.Unlock()

	d.logger.Info("device discovery complete",
		slog.Int("slots", len(rebuilt)),
	)

	return d.Snapshot(), nil
}

// Snapshot returns a copy of the current registry
func (d *Devices) Snapshot() map[string]model.DeviceSlot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]model.DeviceSlot, len(d.slots))
	for k, v := range d.slots {
		out[k] = v
	}
	return out
}

// List returns the known devices sorted by slot label
func (d *Devices) List() []model.DeviceSlot {
	snapshot := d.Snapshot()

	out := make([]model.DeviceSlot, 0, len(snapshot))
	for _, dev := range snapshot {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Known reports whether a slot label exists in the registry
func (d *Devices) Known(slot string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.slots[slot]
	return ok
}

// ChannelIndex resolves a slot label back to its controller channel
// index (labels are 1-based, channels 0-based)
func (d *Devices) ChannelIndex(slot string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.slots[slot]; !ok {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(slot, "slot%02d", &n); err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// SlotLabel formats the stable label for a 1-based slot number
func SlotLabel(n int) string {
	return fmt.Sprintf("slot%02d", n)
}
