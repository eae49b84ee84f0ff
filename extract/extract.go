/*Package extract slices measurement windows out of an acquired waveform.

Windows are specified in experiment time.  Waits stretch the hardware clock,
so a window that begins after a wait must be shifted later by the cumulative
measured wait durations before it is mapped to sample indices.  Index
arithmetic carries a small epsilon so a sample landing exactly on a window
boundary is included rather than falling victim to floating point roundoff.
*/
package extract

import (
	"fmt"
	"math"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

// boundaryEps absorbs floating point error when a window boundary lands on
// or within one part in 1e16 of a sample instant
const boundaryEps = 2e-16

// RangeError describes a window that maps to no samples
type RangeError struct {
	Label   string
	Start   float64
	End     float64
	Samples int
}

func (e RangeError) Error() string {
	return fmt.Sprintf("measurement %q window [%g, %g] contains no samples of the %d acquired", e.Label, e.Start, e.End, e.Samples)
}

// Series is one extracted measurement, times in seconds from the waveform
// start
type Series struct {
	Label  string
	Times  []float64
	Values []float32
}

// shift returns t moved later by the duration of every wait that began
// strictly before t.  A wait starting exactly at t does not move it
func shift(t float64, outcomes []shot.PauseOutcome) float64 {
	for _, o := range outcomes {
		if o.Time < t {
			t += o.Duration
		}
	}
	return t
}

// Window maps a time interval to the index range [lo, hi) of samples inside
// it.  The boundaries are inclusive within boundaryEps at both ends
func Window(start, end, t0, rate float64, n int) (lo, hi int, err error) {
	lo = int(math.Ceil(rate * (start - t0)))
	if lo > 0 && t0+float64(lo-1)/rate-start > -boundaryEps {
		lo--
	}
	hi = int(math.Floor(rate * (end - t0)))
	if end-t0-float64(hi+1)/rate > -boundaryEps {
		hi++
	}
	hi++ // exclusive upper bound
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return 0, 0, fmt.Errorf("window [%g, %g] maps to an empty index range", start, end)
	}
	return lo, hi, nil
}

// Measurement extracts one series from wf.  Window boundaries are shifted by
// the measured wait durations before index mapping
func Measurement(wf *daq.Waveform, m shot.MeasurementRequest, outcomes []shot.PauseOutcome) (Series, error) {
	col, err := wf.ColumnIndex(m.Connection)
	if err != nil {
		return Series{}, err
	}
	n := wf.Samples()
	start := shift(m.Start, outcomes)
	end := shift(m.End, outcomes)
	lo, hi, err := Window(start, end, wf.StartDelay, wf.Rate, n)
	if err != nil {
		return Series{}, RangeError{Label: m.Label, Start: m.Start, End: m.End, Samples: n}
	}
	values := wf.Column(col)[lo:hi]
	times := make([]float64, hi-lo)
	for i := range times {
		times[i] = wf.StartDelay + float64(lo+i)/wf.Rate
	}
	return Series{Label: m.Label, Times: times, Values: values}, nil
}

// Measurements extracts every requested series.  A window that fails does
// not prevent extraction of the others; the errors are returned alongside
// the successful series
func Measurements(wf *daq.Waveform, reqs []shot.MeasurementRequest, outcomes []shot.PauseOutcome) ([]Series, []error) {
	var (
		out  []Series
		errs []error
	)
	for _, m := range reqs {
		s, err := Measurement(wf, m, outcomes)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, errs
}
