/*Package acquire contains the streaming acquisition engine.

The engine keeps one input task running at all times.  In manual mode it
free-runs a fixed channel set and forwards chunks to a live display sink; in
buffered mode it is clocked by an external signal and accumulates every chunk
for a finite run.  The hardware delivers chunks via a callback on its own
execution context, so all shared state (task handle, buffer, mode) is
serialized through one mutex held for the shortest possible critical section.
*/
package acquire

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
)

const (
	// MaxReadPoints caps how many samples accumulate between chunk
	// callbacks
	MaxReadPoints = 10000

	// MaxReadInterval caps how much wall time passes between chunk
	// callbacks, in seconds
	MaxReadInterval = 0.2

	// StopDrainTimeout bounds the final synchronous read that collects
	// samples not yet delivered via callback when a stream stops
	StopDrainTimeout = time.Second
)

// ChunkSamples returns the chunk size for a sample rate: data is taken
// MaxReadPoints samples at a time or once every MaxReadInterval seconds,
// whichever is faster, and never fewer than one sample
func ChunkSamples(rate float64) int {
	n := int(rate * MaxReadInterval)
	if n > MaxReadPoints {
		n = MaxReadPoints
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Mode is an operating mode of the engine
type Mode int

const (
	// Idle is the state before Init; no task is running
	Idle Mode = iota

	// Manual is free-running acquisition on the manual channel set
	Manual

	// Buffered is externally clocked acquisition accumulating into a
	// session
	Buffered
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Manual:
		return "manual"
	case Buffered:
		return "buffered"
	default:
		return "unknown"
	}
}

// Session is one buffered-mode run.  It is created on the transition to
// buffered mode and drained on the transition back to manual
type Session struct {
	// Channels is the ordered set of input channels for the run
	Channels []daq.Channel

	// Rate is the per-channel sample rate in Hz
	Rate float64

	// StartDelay is the time of the first sample relative to the
	// experiment clock, in seconds
	StartDelay float64

	// ClockTerminal names the external clock signal the start trigger is
	// slaved to
	ClockTerminal string

	// TriggerEdge is the polarity of the start trigger
	TriggerEdge daq.TriggerEdge

	chunks  [][]float32
	samples int
}

func (s *Session) append(chunk []float32, samples int) {
	s.chunks = append(s.chunks, chunk)
	s.samples += samples
}

// Samples returns the number of per-channel samples accumulated so far
func (s *Session) Samples() int {
	return s.samples
}

// Waveform concatenates the accumulated chunks in delivery order
func (s *Session) Waveform() *daq.Waveform {
	data := make([]float32, 0, s.samples*len(s.Channels))
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	return &daq.Waveform{
		Channels:   s.Channels,
		Rate:       s.Rate,
		StartDelay: s.StartDelay,
		Data:       data,
	}
}

// LiveSink receives manual-mode chunks for display
type LiveSink interface {
	// Forward is handed one chunk, row-major samples by channels.  It must
	// not retain data past the call
	Forward(channels []daq.Channel, rate float64, data []float32)
}

// Engine runs the producer/consumer acquisition pipeline for one device
type Engine struct {
	// mu serializes task, readBuf, mode, and session between the chunk
	// callback and foreground transitions
	mu      sync.Mutex
	task    daq.InputTask
	readBuf [][]float64
	mode    Mode
	session *Session

	dev         daq.InputStreamer
	sink        LiveSink
	manualChans []daq.Channel
	manualRate  float64
}

// New returns an Engine in the Idle state.  Call Init to begin manual-mode
// sampling
func New(dev daq.InputStreamer, manualChans []daq.Channel, manualRate float64) *Engine {
	return &Engine{dev: dev, manualChans: manualChans, manualRate: manualRate}
}

// SetLiveSink installs the destination for manual-mode chunks.  A nil sink
// discards them
func (e *Engine) SetLiveSink(s LiveSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// Mode returns the current operating mode
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Accumulated returns the per-channel sample count accumulated by the
// current buffered session, zero outside buffered mode
func (e *Engine) Accumulated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return 0
	}
	return e.session.samples
}

// ManualRate returns the manual-mode sample rate in Hz
func (e *Engine) ManualRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manualRate
}

// SetManualRate changes the manual-mode sample rate.  In manual mode the
// running task is restarted at the new rate; in other modes the new rate
// takes effect at the next return to manual sampling
func (e *Engine) SetManualRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("%w: %g", daq.ErrBadSampleRate, rate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manualRate = rate
	if e.mode != Manual {
		return nil
	}
	if err := e.stopStream(); err != nil {
		log.Printf("stopping manual task for a rate change: %v", err)
	}
	return e.restartManual()
}

// Init transitions Idle -> Manual and starts the manual-mode task
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Idle {
		return fmt.Errorf("%w: init from %v", daq.ErrWrongMode, e.mode)
	}
	if err := e.startStream(e.manualChans, e.manualRate, nil); err != nil {
		return err
	}
	e.mode = Manual
	return nil
}

// Shutdown stops whatever task is running and returns the engine to Idle
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.stopStream()
	e.mode = Idle
	e.session = nil
	return err
}

// startStream configures and starts an input task.  session is nil for
// manual mode.  Callers hold e.mu
func (e *Engine) startStream(chans []daq.Channel, rate float64, session *Session) error {
	if e.task != nil {
		return fmt.Errorf("%w: cannot start a second stream", daq.ErrStreamActive)
	}
	n := ChunkSamples(rate)
	buf := make([][]float64, n)
	for i := range buf {
		buf[i] = make([]float64, len(chans))
	}
	cfg := daq.InputConfig{
		Channels:        chans,
		SampleRate:      rate,
		SamplesPerChunk: n,
	}
	if session != nil {
		cfg.StartTrigger = session.ClockTerminal
		cfg.TriggerEdge = session.TriggerEdge
	}
	task, err := e.dev.StartInput(cfg, e.onChunk)
	if err != nil {
		return err
	}
	e.task = task
	e.readBuf = buf
	return nil
}

// onChunk is the hardware chunk callback.  It runs on the device's
// execution context, concurrently with foreground transitions
func (e *Engine) onChunk(task daq.InputTask, available int) {
	e.mu.Lock()
	if e.task == nil || e.task != task {
		// task stopped already; a late callback for a stale handle is
		// silently discarded
		e.mu.Unlock()
		return
	}
	n, err := task.ReadInto(e.readBuf, 0)
	if err != nil {
		log.Printf("chunk read failed: %v", err)
		e.mu.Unlock()
		return
	}
	if n == 0 {
		e.mu.Unlock()
		return
	}
	data := flatten32(e.readBuf, n)
	if e.mode == Buffered && e.session != nil {
		e.session.append(data, n)
		e.mu.Unlock()
		return
	}
	sink := e.sink
	chans := e.manualChans
	rate := e.manualRate
	e.mu.Unlock()
	if sink != nil {
		sink.Forward(chans, rate, data)
	}
}

// stopStream performs the final drain, stops the task, and clears buffer
// state.  Callers hold e.mu
func (e *Engine) stopStream() error {
	if e.task == nil {
		return fmt.Errorf("%w: stop with nothing running", daq.ErrNoStream)
	}
	// one final synchronous read for samples not yet delivered via callback
	n, err := e.task.ReadInto(e.readBuf, StopDrainTimeout)
	if err != nil {
		log.Printf("final drain failed: %v", err)
	} else if n > 0 {
		data := flatten32(e.readBuf, n)
		if e.mode == Buffered && e.session != nil {
			e.session.append(data, n)
		}
	}
	if e.mode == Buffered && e.session != nil {
		total, started := e.task.Total()
		if !started {
			log.Printf("stopping acquisition at sample -1 of %d (task never started)", e.session.samples)
		} else if total != uint64(e.session.samples) {
			log.Printf("stopping acquisition: hardware generated %d samples, accumulated %d: %v",
				total, e.session.samples, daq.ErrSampleOverflow)
		}
	}
	serr := e.task.Stop()
	cerr := e.task.Close()
	e.task = nil
	e.readBuf = nil
	if serr != nil {
		return serr
	}
	return cerr
}

// TransitionToBuffered stops the manual task and starts a buffered task
// against the session's channel list and rate.  If the buffered task cannot
// be started, manual sampling is resumed before the error is returned
func (e *Engine) TransitionToBuffered(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Manual {
		return fmt.Errorf("%w: transition to buffered from %v", daq.ErrWrongMode, e.mode)
	}
	if err := e.stopStream(); err != nil {
		// the manual task is gone either way; get sampling running again
		// before reporting the failure
		e.restartManual()
		return err
	}
	e.mode = Buffered
	e.session = s
	if err := e.startStream(s.Channels, s.Rate, s); err != nil {
		e.mode = Manual
		e.session = nil
		e.restartManual()
		return err
	}
	return nil
}

// TransitionToManual stops the buffered task and resumes manual sampling.
// If abort is false the accumulated session is concatenated and returned for
// finalization; if abort is true it is discarded.  Outside buffered mode the
// call is a no-op: there may have been no acquisition this run.  Manual
// sampling is resumed unconditionally, even after a failed stop, because
// leaving the instrument un-streamed is worse than stale data
func (e *Engine) TransitionToManual(abort bool) (*daq.Waveform, error) {
	e.mu.Lock()
	if e.mode != Buffered {
		e.mu.Unlock()
		return nil, nil
	}
	stopErr := e.stopStream()
	session := e.session
	e.session = nil
	e.mode = Manual
	restartErr := e.restartManual()
	e.mu.Unlock()
	if abort {
		return nil, nil
	}
	if stopErr != nil {
		return nil, stopErr
	}
	if restartErr != nil {
		return session.Waveform(), restartErr
	}
	return session.Waveform(), nil
}

// restartManual restarts the manual-mode task, retrying transient failures
// with an exponential backoff.  Callers hold e.mu
func (e *Engine) restartManual() error {
	op := func() error {
		return e.startStream(e.manualChans, e.manualRate, nil)
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      5 * time.Second,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		log.Printf("manual-mode restart failed: %v", err)
	}
	return err
}

func flatten32(rows [][]float64, n int) []float32 {
	if n == 0 {
		return nil
	}
	nch := len(rows[0])
	out := make([]float32, n*nch)
	for i := 0; i < n; i++ {
		for j := 0; j < nch; j++ {
			out[i*nch+j] = float32(rows[i][j])
		}
	}
	return out
}
