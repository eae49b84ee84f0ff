/*Package shot models the experiment-description store consumed and produced
by a buffered run.

A shot description is read once at the transition to buffered mode: the
channel configuration, sample rate, the ordered wait (pause) schedule, and
the measurement windows to extract afterward.  At the end of the run the
results flow the other way: one trace per measurement request and one wait
outcome record per scheduled wait, written through a ResultWriter.
*/
package shot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
)

// PauseEvent is one scheduled wait in the experiment timeline
type PauseEvent struct {
	// Label names the wait
	Label string `yaml:"label"`

	// Time is the scheduled start time in seconds
	Time float64 `yaml:"time"`

	// Timeout is how long the wait may run before the clock is retriggered
	Timeout float64 `yaml:"timeout"`
}

// PauseOutcome is the resolved result of one PauseEvent, produced at the end
// of a buffered run
type PauseOutcome struct {
	Label    string
	Time     float64
	Timeout  float64
	Duration float64
	TimedOut bool
}

// MeasurementRequest is one requested measurement window
type MeasurementRequest struct {
	// Connection is the channel the measurement is taken on, e.g. "ai0"
	Connection string `yaml:"connection"`

	// Label names the output trace
	Label string `yaml:"label"`

	// Start and End are the nominal window bounds in seconds, before
	// adjustment for elapsed wait durations
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// ChannelSetup is the on-disk form of a channel configuration
type ChannelSetup struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Lines int     `yaml:"lines"`
}

// Channel converts the setup to a daq.Channel
func (c ChannelSetup) Channel() (daq.Channel, error) {
	kind, err := daq.ValidateChannelKind(c.Kind)
	if err != nil {
		return daq.Channel{}, err
	}
	return daq.Channel{Name: c.Name, Kind: kind, VMin: c.Min, VMax: c.Max, Lines: c.Lines}, nil
}

// WaitMonitorSetup designates which device monitors waits and on what lines
type WaitMonitorSetup struct {
	// AcquisitionDevice and AcquisitionConnection name the device and
	// counter terminal the wait monitor signal is measured on
	AcquisitionDevice     string `yaml:"acquisitionDevice"`
	AcquisitionConnection string `yaml:"acquisitionConnection"`

	// TimeoutDevice and TimeoutConnection name the device and digital line
	// used to retrigger a stalled clock
	TimeoutDevice     string `yaml:"timeoutDevice"`
	TimeoutConnection string `yaml:"timeoutConnection"`

	// TriggerEdge is the retrigger polarity, "rising" or "falling".
	// An empty value means rising
	TriggerEdge string `yaml:"triggerEdge"`
}

// Description is one shot's experiment description
type Description struct {
	// Device names the acquisition device this description is addressed to
	Device string `yaml:"device"`

	// Channels is the analog input channel configuration
	Channels []ChannelSetup `yaml:"channels"`

	// Rate is the buffered acquisition rate in Hz
	Rate float64 `yaml:"rate"`

	// StartDelay is the acquisition start delay in seconds
	StartDelay float64 `yaml:"startDelay"`

	// ClockTerminal names the external clock the buffered start trigger is
	// slaved to
	ClockTerminal string `yaml:"clockTerminal"`

	// Waits is the wait schedule, ordered by start time
	Waits []PauseEvent `yaml:"waits"`

	// Measurements is the list of windows to extract after the run
	Measurements []MeasurementRequest `yaml:"measurements"`

	// WaitMonitor designates the wait-monitoring device and lines
	WaitMonitor WaitMonitorSetup `yaml:"waitMonitor"`
}

// Load reads and validates a shot description from a YAML file
func Load(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var d Description
	if err := yaml.NewDecoder(f).Decode(&d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the invariants a description must satisfy before any
// hardware is armed
func (d *Description) Validate() error {
	if d.Rate <= 0 && len(d.Channels) > 0 {
		return fmt.Errorf("acquisition rate must be positive, got %g", d.Rate)
	}
	for i, c := range d.Channels {
		if _, err := c.Channel(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	for i := 1; i < len(d.Waits); i++ {
		if d.Waits[i].Time <= d.Waits[i-1].Time {
			return fmt.Errorf("waits must be strictly increasing in time: %q at %g follows %q at %g",
				d.Waits[i].Label, d.Waits[i].Time, d.Waits[i-1].Label, d.Waits[i-1].Time)
		}
	}
	for _, m := range d.Measurements {
		if m.End < m.Start {
			return fmt.Errorf("measurement %q ends (%g) before it starts (%g)", m.Label, m.End, m.Start)
		}
	}
	if _, err := d.TimeoutEdge(); err != nil {
		return err
	}
	return nil
}

// WaitsInUse reports whether any waits are scheduled for this run
func (d *Description) WaitsInUse() bool {
	return len(d.Waits) > 0
}

// InputChannels converts the channel setups to daq form
func (d *Description) InputChannels() ([]daq.Channel, error) {
	out := make([]daq.Channel, 0, len(d.Channels))
	for _, c := range d.Channels {
		ch, err := c.Channel()
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// TimeoutEdge returns the retrigger polarity, defaulting to rising when the
// description does not specify one
func (d *Description) TimeoutEdge() (daq.TriggerEdge, error) {
	if d.WaitMonitor.TriggerEdge == "" {
		return daq.RisingEdge, nil
	}
	return daq.ValidateTriggerEdge(d.WaitMonitor.TriggerEdge)
}

// IsWaitMonitorDevice reports whether the named device is the designated
// wait monitor.  Designation follows the waitMonitor stanza alone, so the
// monitor device is known even when no waits are scheduled and still writes
// its (empty) outcome record set at the end of the run.  A device must hold
// both the timeout and acquisition roles; splitting them across devices is
// not supported
func (d *Description) IsWaitMonitorDevice(name string) (bool, error) {
	if d.WaitMonitor.AcquisitionDevice == "" && d.WaitMonitor.TimeoutDevice == "" {
		return false, nil
	}
	acq := d.WaitMonitor.AcquisitionDevice == name
	tmo := d.WaitMonitor.TimeoutDevice == name
	if acq != tmo {
		return false, fmt.Errorf("device %q must be both the wait monitor timeout device and acquisition device, or neither", name)
	}
	return acq && tmo, nil
}
