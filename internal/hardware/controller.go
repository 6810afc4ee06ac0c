package hardware

// Channel describes one physical potentiostat channel as enumerated by
// the controller. Enumeration order is stable and drives slot labeling.
type Channel struct {
	Index        int
	Port         string
	SerialNumber string
}

// ParamSpec describes one accepted parameter of a measurement mode
type ParamSpec struct {
	Type     string   `json:"type"` // float | int | bool | string
	Unit     string   `json:"unit,omitempty"`
	Default  any      `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Required bool     `json:"required"`
}

// Measurement carries everything the controller needs to run one
// measurement on one channel. Folder is the absolute slot output
// directory; Filename is the CSV file to produce inside it.
type Measurement struct {
	Mode             string
	Params           map[string]any
	TIAGain          *int
	SamplingInterval *float64
	Filename         string
	Folder           string
}

// Controller is the hardware-driver abstraction. Apply blocks for the
// full measurement duration and is not natively cancellable; callers
// that need cancellation probe the optional capability interfaces
// below via type assertion.
type Controller interface {
	// Channels enumerates the connected channels. A channel whose
	// port or serial cannot be resolved is still reported, with
	// zero-valued metadata.
	Channels() ([]Channel, error)

	// Modes lists the measurement modes this controller supports
	Modes() []string

	// ModeParams describes the accepted parameters of a mode
	ModeParams(mode string) (map[string]ParamSpec, error)

	// Apply runs one blocking measurement on the given channel,
	// writing its result files under m.Folder.
	Apply(channel int, m Measurement) error
}

// Aborter is an optional controller capability: request a best-effort
// abort of the measurement running on a channel. The measurement call
// may still run to completion.
type Aborter interface {
	Abort(channel int) error
}

// PortCloser is an optional controller capability used as a last
// resort when no Aborter is available: forcibly close the channel's
// underlying serial connection to unblock a stuck measurement.
type PortCloser interface {
	ClosePort(channel int) error
}
