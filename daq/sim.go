package daq

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Sim is a software device.  It generates analog input data in real time
// from a per-channel signal function, measures "edges" fed to it with
// QueueEdge, and records digital line writes.  It is used by the tests and
// by deployments with no hardware attached
type Sim struct {
	// Signal produces the value of channel index ch at sample ordinal i.
	// The default is a small sine per channel
	Signal func(ch int, i uint64) float64

	// OnLine, if non-nil, is invoked after every WriteLine.  The simulated
	// wait-monitor wiring uses it to answer a retrigger pulse with an edge
	OnLine func(line string, level bool)

	mu       sync.Mutex
	lines    map[string]bool
	edges    chan float64
	triggers map[string]chan struct{}
}

// NewSim returns a Sim ready for use
func NewSim() *Sim {
	return &Sim{
		Signal: func(ch int, i uint64) float64 {
			return math.Sin(2 * math.Pi * float64(i) / 100 * float64(ch+1))
		},
		lines:    map[string]bool{},
		edges:    make(chan float64, 1024),
		triggers: map[string]chan struct{}{},
	}
}

// QueueEdge makes one semi-period measurement available to any edge counter
// task running on the device
func (s *Sim) QueueEdge(halfPeriod float64) {
	s.edges <- halfPeriod
}

// FireTrigger releases any input task armed with a start trigger on the
// named terminal.  Firing a terminal more than once is harmless
func (s *Sim) FireTrigger(terminal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.triggers[terminal]
	if !ok {
		ch = make(chan struct{})
		s.triggers[terminal] = ch
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (s *Sim) trigger(terminal string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.triggers[terminal]
	if !ok {
		ch = make(chan struct{})
		s.triggers[terminal] = ch
	}
	return ch
}

// WriteLine sets a simulated digital line
func (s *Sim) WriteLine(line string, level bool) error {
	s.mu.Lock()
	s.lines[line] = level
	hook := s.OnLine
	s.mu.Unlock()
	if hook != nil {
		hook(line, level)
	}
	return nil
}

// Level returns the last value written to a simulated line
func (s *Sim) Level(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[line]
}

// StartInput arms a simulated input task.  Data is generated in real time at
// cfg.SampleRate; onChunk fires from the task's own goroutine
func (s *Sim) StartInput(cfg InputConfig, onChunk ChunkFunc) (InputTask, error) {
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrBadSampleRate
	}
	if cfg.SamplesPerChunk < 1 {
		cfg.SamplesPerChunk = 1
	}
	t := &simInputTask{
		sim:     s,
		cfg:     cfg,
		onChunk: onChunk,
		stop:    make(chan struct{}),
	}
	go t.run()
	return t, nil
}

// StartEdgeCounter arms a simulated semi-period counter fed by QueueEdge
func (s *Sim) StartEdgeCounter(cfg CounterConfig) (EdgeTask, error) {
	return &simEdgeTask{sim: s, stop: make(chan struct{})}, nil
}

type simInputTask struct {
	sim     *Sim
	cfg     InputConfig
	onChunk ChunkFunc

	mu      sync.Mutex
	pending [][]float64

	total   atomic.Uint64
	started atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

func (t *simInputTask) run() {
	if t.cfg.StartTrigger != "" {
		select {
		case <-t.sim.trigger(t.cfg.StartTrigger):
		case <-t.stop:
			return
		}
	}
	t.started.Store(true)
	period := time.Duration(float64(t.cfg.SamplesPerChunk) / t.cfg.SampleRate * float64(time.Second))
	if period <= 0 {
		period = time.Millisecond
	}
	tick := time.NewTicker(period)
	defer tick.Stop()
	var ordinal uint64
	for {
		select {
		case <-t.stop:
			return
		case <-tick.C:
			chunk := make([][]float64, t.cfg.SamplesPerChunk)
			for i := range chunk {
				row := make([]float64, len(t.cfg.Channels))
				for ch := range row {
					row[ch] = t.sim.Signal(ch, ordinal)
				}
				chunk[i] = row
				ordinal++
			}
			t.mu.Lock()
			t.pending = append(t.pending, chunk...)
			n := len(t.pending)
			t.mu.Unlock()
			t.total.Add(uint64(t.cfg.SamplesPerChunk))
			if t.onChunk != nil {
				t.onChunk(t, n)
			}
		}
	}
}

func (t *simInputTask) ReadInto(dst [][]float64, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		t.mu.Lock()
		n := len(t.pending)
		if n > len(dst) {
			n = len(dst)
		}
		if n > 0 {
			for i := 0; i < n; i++ {
				copy(dst[i], t.pending[i])
			}
			t.pending = t.pending[n:]
			t.mu.Unlock()
			return n, nil
		}
		t.mu.Unlock()
		if timeout <= 0 || !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (t *simInputTask) Total() (uint64, bool) {
	return t.total.Load(), t.started.Load()
}

func (t *simInputTask) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

func (t *simInputTask) Close() error {
	return t.Stop()
}

type simEdgeTask struct {
	sim      *Sim
	stop     chan struct{}
	stopOnce sync.Once
}

func (t *simEdgeTask) ReadEdge(timeout time.Duration) (float64, error) {
	if timeout < 0 {
		timeout = 0
	}
	// queued edges win over an already-expired timer
	select {
	case hp := <-t.sim.edges:
		return hp, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case hp := <-t.sim.edges:
		return hp, nil
	case <-t.stop:
		return 0, ErrNoStream
	case <-timer.C:
		return 0, ErrEdgeTimeout
	}
}

func (t *simEdgeTask) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

func (t *simEdgeTask) Close() error {
	return t.Stop()
}
