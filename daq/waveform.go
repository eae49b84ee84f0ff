package daq

import "fmt"

// Waveform is the accumulated result of one buffered acquisition: every
// chunk read during the run concatenated in temporal order, downconverted
// to 32 bit floats for storage
type Waveform struct {
	// Channels is the ordered channel set the data was sampled on
	Channels []Channel

	// Rate is the per-channel sample rate in Hz
	Rate float64

	// StartDelay is the time of the first sample relative to the
	// experiment clock, in seconds
	StartDelay float64

	// Data is row-major [sample][channel]; len(Data) == Samples()*len(Channels)
	Data []float32
}

// Samples returns the number of samples per channel in the waveform
func (w *Waveform) Samples() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Data) / len(w.Channels)
}

// Column returns a copy of one channel's samples by index
func (w *Waveform) Column(ch int) []float32 {
	nch := len(w.Channels)
	n := w.Samples()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = w.Data[i*nch+ch]
	}
	return out
}

// ColumnIndex returns the index of the named channel
func (w *Waveform) ColumnIndex(name string) (int, error) {
	for i, c := range w.Channels {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("connection %q is not among the acquired channels", name)
}
