/*Package waitmon monitors the waits of a buffered run on a hardware edge
signal.

The monitor runs a semi-period counter task on a dedicated goroutine.  For
each scheduled wait it blocks for the edge marking the end of the wait; if
the edge does not arrive within the wait's timeout, the monitor emits a
retrigger pulse on a digital line to resume the stalled experiment clock and
blocks again for the resulting edge.  All blocking waits are decomposed into
bounded polls of PollInterval so a caller-set abort flag is observed
promptly.  The goroutine is deliberately allowed to outlive a shutdown
request until it honors the abort: killing it silently would drop timeout
logic on the floor.

Once the run completes, the collected semi-periods are handed to Resolve to
back-calculate each wait's actual duration.
*/
package waitmon

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

// PollInterval is the granularity at which blocking edge waits re-check the
// abort flag and their deadline.  It is a tunable, not load-bearing; smaller
// values abort faster at the cost of more driver round trips
const PollInterval = 200 * time.Millisecond

// State is a phase of the monitor's life
type State int32

const (
	// WaitingForStart is before the first rising edge zeroes the clock
	WaitingForStart State = iota

	// WaitingForPauseEnd is the steady state, blocking on wait boundaries
	WaitingForPauseEnd

	// Finished means every scheduled wait completed
	Finished

	// Aborted means the abort flag ended the run early
	Aborted
)

func (s State) String() string {
	switch s {
	case WaitingForStart:
		return "waiting-for-start"
	case WaitingForPauseEnd:
		return "waiting-for-pause-end"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config parameterizes one run of the monitor
type Config struct {
	// Terminal is the counter input the wait monitor signal is measured on
	Terminal string

	// TimeoutLine is the digital line pulsed to retrigger a stalled clock
	TimeoutLine string

	// TimeoutEdge is the retrigger polarity
	TimeoutEdge daq.TriggerEdge

	// PulseWidth is how long the retrigger pulse is held before rearming
	PulseWidth time.Duration

	// Waits is the schedule, ordered by start time
	Waits []shot.PauseEvent
}

// Monitor drives the edge-timing state machine for one device
type Monitor struct {
	counter  daq.EdgeCounter
	lines    daq.LineWriter
	notifier *Notifier

	mu          sync.Mutex
	task        daq.EdgeTask
	running     bool
	halfPeriods []float64

	cfg   Config
	abort atomic.Bool
	state atomic.Int32
	done  chan struct{}
	err   error
}

// New returns a Monitor using the given counter and line-writing
// capabilities, publishing notifications through notifier
func New(counter daq.EdgeCounter, lines daq.LineWriter, notifier *Notifier) *Monitor {
	return &Monitor{counter: counter, lines: lines, notifier: notifier}
}

// State returns the monitor's current phase
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// HalfPeriods returns a copy of the semi-periods collected so far
func (m *Monitor) HalfPeriods() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.halfPeriods))
	copy(out, m.halfPeriods)
	return out
}

// Done is closed when the monitor goroutine exits
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Start validates the configuration, arms the counter and timeout line, and
// spawns the monitoring goroutine.  Configuration failures are raised here,
// before any hardware is armed
func (m *Monitor) Start(cfg Config) error {
	if cfg.TimeoutEdge != daq.RisingEdge && cfg.TimeoutEdge != daq.FallingEdge {
		return fmt.Errorf("timeout trigger polarity %d is not a member of {rising, falling}", cfg.TimeoutEdge)
	}
	if cfg.PulseWidth <= 0 {
		return fmt.Errorf("retrigger pulse width must be positive, got %v", cfg.PulseWidth)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("%w: wait monitor already running", daq.ErrStreamActive)
	}
	task, err := m.counter.StartEdgeCounter(daq.CounterConfig{Terminal: cfg.Terminal, MinWidth: 100 * time.Nanosecond})
	if err != nil {
		return err
	}
	// a falling-polarity retrigger idles high so the pulse is a drop
	if cfg.TimeoutEdge == daq.FallingEdge {
		if err := m.lines.WriteLine(cfg.TimeoutLine, true); err != nil {
			task.Close()
			return err
		}
	}
	m.cfg = cfg
	m.task = task
	m.running = true
	m.halfPeriods = nil
	m.err = nil
	m.done = make(chan struct{})
	m.state.Store(int32(WaitingForStart))
	go m.run()
	return nil
}

func (m *Monitor) run() {
	defer close(m.done)
	log.Println("starting wait monitor read loop")
	err := m.watch()
	if err != nil {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		if errors.Is(err, daq.ErrAborted) {
			m.state.Store(int32(Aborted))
		} else {
			log.Printf("wait monitor: %v", err)
		}
		return
	}
	m.state.Store(int32(Finished))
}

func (m *Monitor) watch() error {
	// the first rising edge starts the experiment; it zeroes the clock but
	// is not a measurement
	if _, err := m.waitForEdge(-1, false); err != nil {
		return err
	}
	m.state.Store(int32(WaitingForPauseEnd))
	current := 0.0
	for _, w := range m.cfg.Waits {
		timeout := w.Time + w.Timeout - current
		if timeout < 0 {
			timeout = 0
		}
		_, err := m.waitForEdge(secs(timeout), true)
		if errors.Is(err, daq.ErrEdgeTimeout) {
			log.Printf("wait %q timed out; retriggering clock with %v pulse (%s edge)",
				w.Label, m.cfg.PulseWidth, daq.FormatTriggerEdge(m.cfg.TimeoutEdge))
			if err = m.resumeTrigger(); err != nil {
				return err
			}
			log.Println("waiting for edge on the wait monitor")
			_, err = m.waitForEdge(-1, true)
		}
		if err != nil {
			return err
		}
		log.Printf("wait %q completed", w.Label)
		current = w.Time
		m.notifier.Post(Event{Topic: TopicWaitCompleted, Label: w.Label})
		// the edge marking true resumption
		hp, err := m.waitForEdge(-1, true)
		if err != nil {
			return err
		}
		current += hp
	}
	log.Println("all waits finished")
	m.notifier.Post(Event{Topic: TopicAllWaitsFinished})
	return nil
}

// waitForEdge blocks up to timeout for the next semi-period, polling in
// increments of PollInterval so the abort flag is observed promptly.  A
// negative timeout blocks until an edge or an abort.  record adds the
// measurement to the collected sequence
func (m *Monitor) waitForEdge(timeout time.Duration, record bool) (float64, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if m.abort.Load() {
			return 0, daq.ErrAborted
		}
		slice := PollInterval
		expired := false
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				// one last zero-timeout read so an edge that raced the
				// deadline is not lost
				slice = 0
				expired = true
			} else if remaining < slice {
				slice = remaining
			}
		}
		hp, err := m.task.ReadEdge(slice)
		if errors.Is(err, daq.ErrEdgeTimeout) {
			if expired {
				return 0, daq.ErrEdgeTimeout
			}
			continue
		}
		if err != nil {
			return 0, err
		}
		if record {
			m.mu.Lock()
			m.halfPeriods = append(m.halfPeriods, hp)
			m.mu.Unlock()
		}
		return hp, nil
	}
}

// resumeTrigger pulses the timeout line at the configured polarity, holds
// for the pulse width, then rearms to the opposite polarity
func (m *Monitor) resumeTrigger() error {
	trigger := m.cfg.TimeoutEdge == daq.RisingEdge
	if err := m.lines.WriteLine(m.cfg.TimeoutLine, trigger); err != nil {
		return err
	}
	time.Sleep(m.cfg.PulseWidth)
	return m.lines.WriteLine(m.cfg.TimeoutLine, !trigger)
}

// Stop ends the run.  With abort set, any in-progress edge wait fails with
// ErrAborted within one poll interval; without it, Stop blocks until the
// schedule has played out, then drains any semi-periods still queued in the
// counter before the tasks are released.  The abort flag is reset afterward
// so a later run raises unexpected errors normally
func (m *Monitor) Stop(abort bool) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	done := m.done
	m.mu.Unlock()

	m.abort.Store(abort)
	<-done
	m.abort.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !abort {
		// samples measured but never consumed by the state machine, e.g.
		// the trailing edge of the final resumption pulse
		for {
			hp, err := m.task.ReadEdge(0)
			if err != nil {
				break
			}
			m.halfPeriods = append(m.halfPeriods, hp)
		}
	}
	m.task.Stop()
	m.task.Close()
	m.task = nil
	m.running = false
	if abort && errors.Is(m.err, daq.ErrAborted) {
		return nil
	}
	return m.err
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
