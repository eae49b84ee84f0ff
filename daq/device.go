package daq

import "time"

// InputConfig configures a continuously sampled analog input task
type InputConfig struct {
	// Channels is the ordered set of input channels to sample
	Channels []Channel

	// SampleRate is the per-channel sample rate in Hz
	SampleRate float64

	// SamplesPerChunk is the every-N-samples callback threshold; the device
	// invokes the chunk callback each time this many samples are available
	SamplesPerChunk int

	// StartTrigger, when non-empty, arms a digital edge start trigger slaved
	// to the named terminal; the task produces no samples until the edge
	// arrives
	StartTrigger string

	// TriggerEdge is the polarity of the start trigger
	TriggerEdge TriggerEdge
}

// ChunkFunc is invoked from the device's own execution context each time
// SamplesPerChunk samples are available on an input task.  The task argument
// identifies which task the samples belong to, so that a callback arriving
// after its task was torn down can be recognized and discarded
type ChunkFunc func(task InputTask, available int)

// InputTask is a running analog input task
type InputTask interface {
	// ReadInto fills dst with up to len(dst) samples, one slice of
	// per-channel values per sample, and returns the number of samples
	// read.  A nonpositive timeout takes only what is already buffered;
	// otherwise the read waits up to timeout for at least one sample.
	// A read that finds nothing is not an error; it returns 0, nil
	ReadInto(dst [][]float64, timeout time.Duration) (int, error)

	// Total returns the cumulative number of samples per channel the
	// hardware has generated, and false for a task that never started
	Total() (uint64, bool)

	// Stop halts sample generation
	Stop() error

	// Close releases the task's resources; the task may not be reused
	Close() error
}

// InputStreamer is a device capable of continuously sampled analog input
type InputStreamer interface {
	// StartInput arms and starts an input task.  onChunk fires from the
	// device's execution context; the call itself returns immediately
	StartInput(cfg InputConfig, onChunk ChunkFunc) (InputTask, error)
}

// CounterConfig configures a semi-period counter input task
type CounterConfig struct {
	// Terminal names the counter input the semi-periods are measured on
	Terminal string

	// MinWidth rejects pulses shorter than this as glitches rather than
	// edges.  Zero uses the device default
	MinWidth time.Duration
}

// EdgeTask is a running semi-period counter task.  Each measurement is the
// time elapsed between two consecutive opposite-polarity edges
type EdgeTask interface {
	// ReadEdge blocks up to timeout for the next semi-period measurement in
	// seconds.  ErrEdgeTimeout is returned when none arrives in time
	ReadEdge(timeout time.Duration) (float64, error)

	// Stop halts edge measurement
	Stop() error

	// Close releases the task's resources
	Close() error
}

// EdgeCounter is a device capable of semi-period edge measurement
type EdgeCounter interface {
	StartEdgeCounter(cfg CounterConfig) (EdgeTask, error)
}

// LineWriter is a device capable of writing a single digital line
type LineWriter interface {
	// WriteLine sets the named line high (true) or low (false)
	WriteLine(line string, level bool) error
}

// Device is the full capability set of an acquisition/output device
type Device interface {
	InputStreamer
	EdgeCounter
	LineWriter
}
