package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateSlotStatuses(t *testing.T) {
	tests := []struct {
		name  string
		slots []string
		want  string
	}{
		{"all queued", []string{StatusQueued, StatusQueued}, StatusRunning},
		{"one running", []string{StatusDone, StatusRunning}, StatusRunning},
		{"queued beats terminal", []string{StatusFailed, StatusQueued}, StatusRunning},
		{"all done", []string{StatusDone, StatusDone}, StatusDone},
		{"failed wins over cancelled", []string{StatusCancelled, StatusFailed, StatusDone}, StatusFailed},
		{"cancelled wins over done", []string{StatusDone, StatusCancelled}, StatusCancelled},
		{"single cancelled", []string{StatusCancelled}, StatusCancelled},
		{"no slots", nil, StatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := make([]SlotStatus, len(tt.slots))
			for i, s := range tt.slots {
				slots[i] = SlotStatus{Slot: "slot01", Status: s}
			}
			assert.Equal(t, tt.want, AggregateSlotStatuses(slots))
		})
	}
}

func TestIsTerminalSlotStatus(t *testing.T) {
	assert.False(t, IsTerminalSlotStatus(StatusQueued))
	assert.False(t, IsTerminalSlotStatus(StatusRunning))
	assert.True(t, IsTerminalSlotStatus(StatusDone))
	assert.True(t, IsTerminalSlotStatus(StatusFailed))
	assert.True(t, IsTerminalSlotStatus(StatusCancelled))
}

func TestDeviceSelectorUnmarshal(t *testing.T) {
	var req JobRequest
	require.NoError(t, json.Unmarshal([]byte(`{"devices":"all","mode":"CV"}`), &req))
	assert.True(t, req.Devices.All)
	assert.Empty(t, req.Devices.Slots)

	require.NoError(t, json.Unmarshal([]byte(`{"devices":["slot01","slot03"],"mode":"CV"}`), &req))
	assert.False(t, req.Devices.All)
	assert.Equal(t, []string{"slot01", "slot03"}, req.Devices.Slots)

	assert.Error(t, json.Unmarshal([]byte(`{"devices":"some"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"devices":42}`), &req))
}

func TestDeviceSelectorMarshalRoundTrip(t *testing.T) {
	data, err := json.Marshal(DeviceSelector{All: true})
	require.NoError(t, err)
	assert.JSONEq(t, `"all"`, string(data))

	data, err = json.Marshal(DeviceSelector{Slots: []string{"slot02"}})
	require.NoError(t, err)
	assert.JSONEq(t, `["slot02"]`, string(data))
}
