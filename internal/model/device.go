package model

// DeviceSlot represents one potentiostat channel on the box
type DeviceSlot struct {
	Slot         string `json:"slot"`
	Port         string `json:"port"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// PortUnknown is the placeholder used when a channel's serial port
// cannot be resolved during discovery
const PortUnknown = "unknown"
