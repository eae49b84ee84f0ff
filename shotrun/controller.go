/*Package shotrun sequences one acquisition shot end to end.

A Controller owns the pieces for a single device: the streaming engine, the
wait monitor, the in-process notification bus, and a factory for result
writers.  TransitionToBuffered parses the shot description and arms what the
description asks this device to do; TransitionToManual tears the run down in
the reverse order, resolves wait durations, extracts measurement windows,
and writes results.

When several devices take part in one shot, only one of them hosts the wait
monitor.  The others cannot shift their measurement windows until the
monitor's durations are published, so TransitionToManual on a non-monitor
device blocks on the durations-resolved notification before extracting.
*/
package shotrun

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.jpl.nasa.gov/bdube/daqsync/acquire"
	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/extract"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
	"github.jpl.nasa.gov/bdube/daqsync/waitmon"
)

const (
	// DefaultPulseWidth is how long the retrigger pulse is held when the
	// shot description does not say otherwise
	DefaultPulseWidth = 100 * time.Microsecond

	// resolveTimeout bounds how long a non-monitor device waits for the
	// monitor's durations before giving up on window extraction
	resolveTimeout = 30 * time.Second
)

// Controller sequences shots for one named device
type Controller struct {
	// DeviceName is this device's name as it appears in shot descriptions
	DeviceName string

	Engine   *acquire.Engine
	Monitor  *waitmon.Monitor
	Notifier *waitmon.Notifier

	// NewWriter opens the result writer for a shot, given the shot
	// description's path
	NewWriter func(shotPath string) (shot.ResultWriter, error)

	desc      *shot.Description
	shotPath  string
	isMonitor bool
	armed     atomic.Bool
	events    <-chan waitmon.Event
}

// Mode returns the engine's operating mode as a string
func (c *Controller) Mode() string {
	return c.Engine.Mode().String()
}

// Accumulated returns the per-channel sample count of the current buffered
// session
func (c *Controller) Accumulated() int {
	return c.Engine.Accumulated()
}

// MonitorState returns the wait monitor's phase
func (c *Controller) MonitorState() string {
	return c.Monitor.State().String()
}

// HalfPeriods returns the semi-periods the wait monitor has measured so far
func (c *Controller) HalfPeriods() []float64 {
	return c.Monitor.HalfPeriods()
}

// Armed reports whether a shot is currently loaded on this device
func (c *Controller) Armed() bool {
	return c.armed.Load()
}

// ManualRate returns the free-running sample rate used between shots, in Hz
func (c *Controller) ManualRate() float64 {
	return c.Engine.ManualRate()
}

// SetManualRate changes the free-running sample rate used between shots
func (c *Controller) SetManualRate(hz float64) error {
	return c.Engine.SetManualRate(hz)
}

// TransitionToBuffered loads the shot description at shotPath and arms this
// device's roles in it: buffered acquisition if the description names input
// channels, and the wait monitor if this device hosts it
func (c *Controller) TransitionToBuffered(shotPath string) error {
	d, err := shot.Load(shotPath)
	if err != nil {
		return err
	}
	isMonitor, err := d.IsWaitMonitorDevice(c.DeviceName)
	if err != nil {
		return err
	}
	chans, err := d.InputChannels()
	if err != nil {
		return err
	}
	// subscribe before anything is armed so the durations notification
	// cannot be missed
	var events <-chan waitmon.Event
	if d.WaitsInUse() && !isMonitor {
		events = c.Notifier.Subscribe()
	}
	if len(chans) > 0 {
		s := &acquire.Session{
			Channels:      chans,
			Rate:          d.Rate,
			StartDelay:    d.StartDelay,
			ClockTerminal: d.ClockTerminal,
			TriggerEdge:   daq.RisingEdge,
		}
		if err := c.Engine.TransitionToBuffered(s); err != nil {
			return err
		}
	}
	if isMonitor && d.WaitsInUse() {
		edge, err := d.TimeoutEdge()
		if err == nil {
			err = c.Monitor.Start(waitmon.Config{
				Terminal:    d.WaitMonitor.AcquisitionConnection,
				TimeoutLine: d.WaitMonitor.TimeoutConnection,
				TimeoutEdge: edge,
				PulseWidth:  DefaultPulseWidth,
				Waits:       d.Waits,
			})
		}
		if err != nil {
			if len(chans) > 0 {
				c.Engine.TransitionToManual(true)
			}
			return err
		}
	}
	c.desc = d
	c.shotPath = shotPath
	c.isMonitor = isMonitor
	c.events = events
	c.armed.Store(true)
	return nil
}

// TransitionToManual ends the shot.  With abort set, tasks are stopped and
// accumulated data discarded.  Otherwise the monitor's semi-periods are
// resolved into wait durations and published, measurement windows are
// extracted from the acquired waveform, and everything is written to the
// shot's result file
func (c *Controller) TransitionToManual(abort bool) error {
	d := c.desc
	c.desc = nil
	events := c.events
	c.events = nil
	c.armed.Store(false)
	if d == nil {
		// no shot armed; restore manual sampling and move on
		_, err := c.Engine.TransitionToManual(abort)
		return err
	}

	var (
		w        shot.ResultWriter
		outcomes []shot.PauseOutcome
		firstErr error
	)
	writer := func() (shot.ResultWriter, error) {
		if w != nil {
			return w, nil
		}
		var err error
		w, err = c.NewWriter(c.shotPath)
		return w, err
	}
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.isMonitor {
		if d.WaitsInUse() {
			err := c.Monitor.Stop(abort)
			keep(err)
			if !abort && err == nil {
				outcomes, err = waitmon.Resolve(c.Monitor.HalfPeriods(), d.Waits)
				keep(err)
				if err == nil {
					if wr, werr := writer(); werr != nil {
						keep(werr)
					} else {
						keep(wr.WriteWaitOutcomes(outcomes))
					}
					c.Notifier.Post(waitmon.Event{Topic: waitmon.TopicDurationsResolved, Outcomes: outcomes})
				}
			}
		} else if !abort {
			// no waits this shot, but the outcome record set is still
			// written exactly once, empty
			outcomes = []shot.PauseOutcome{}
			if wr, werr := writer(); werr != nil {
				keep(werr)
			} else {
				keep(wr.WriteWaitOutcomes(outcomes))
			}
		}
	}

	wf, err := c.Engine.TransitionToManual(abort)
	keep(err)

	if !abort && wf != nil && len(d.Measurements) > 0 {
		if outcomes == nil && events != nil && d.WaitsInUse() {
			ev, werr := waitmon.WaitFor(events, waitmon.TopicDurationsResolved, resolveTimeout)
			if werr != nil {
				keep(fmt.Errorf("wait durations never arrived: %w", werr))
			} else {
				outcomes = ev.Outcomes
			}
		}
		if firstErr == nil || outcomes != nil || !d.WaitsInUse() {
			series, errs := extract.Measurements(wf, d.Measurements, outcomes)
			for _, e := range errs {
				log.Printf("measurement extraction: %v", e)
				keep(e)
			}
			if len(series) > 0 {
				if wr, werr := writer(); werr != nil {
					keep(werr)
				} else {
					for _, s := range series {
						keep(wr.WriteTrace(s.Label, s.Times, s.Values))
					}
				}
			}
		}
	}

	if w != nil {
		keep(w.Close())
	}
	return firstErr
}

// Abort is TransitionToManual with the abort flag set
func (c *Controller) Abort() error {
	return c.TransitionToManual(true)
}
