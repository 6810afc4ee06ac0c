package plot

// Plotter renders result files into plots. Rendering itself lives
// outside this service; slot workers only request it, best-effort.
type Plotter interface {
	// PlotCycles renders a cyclic-voltammetry CSV, one trace per cycle
	PlotCycles(csvPath, pngPath string, cycles int) error

	// PlotTimeSeries renders a generic time-series CSV
	PlotTimeSeries(csvPath, pngPath string) error
}

// Discard is the no-op plotter used when no renderer is wired in
type Discard struct{}

func (Discard) PlotCycles(csvPath, pngPath string, cycles int) error { return nil }

func (Discard) PlotTimeSeries(csvPath, pngPath string) error { return nil }
