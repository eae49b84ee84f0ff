package extract_test

import (
	"errors"
	"testing"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/extract"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

// rampWaveform has two channels; ai0 carries the sample ordinal, ai1 its
// negative, making slices easy to check
func rampWaveform(n int, rate float64) *daq.Waveform {
	data := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = float32(i)
		data[2*i+1] = -float32(i)
	}
	return &daq.Waveform{
		Channels: []daq.Channel{
			{Name: "ai0", Kind: daq.AnalogIn},
			{Name: "ai1", Kind: daq.AnalogIn},
		},
		Rate: rate,
		Data: data,
	}
}

func TestWindowBasic(t *testing.T) {
	lo, hi, err := extract.Window(0.001, 0.003, 0, 1000, 100)
	if err != nil {
		t.Fatal(err)
	}
	if lo != 1 || hi != 4 {
		t.Errorf("expected samples [1, 4), got [%d, %d)", lo, hi)
	}
}

func TestWindowBoundarySamplesIncluded(t *testing.T) {
	// rate * end computes to just under the true sample index; the sample
	// sitting exactly on the boundary must still be included
	end := 1.0 / 3
	lo, hi, err := extract.Window(0, end, 0, 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if lo != 0 {
		t.Errorf("expected the window to open at sample 0, got %d", lo)
	}
	if hi != 2 {
		t.Errorf("expected the boundary sample 1 to be included, got upper bound %d", hi)
	}
}

func TestWindowStartBoundaryRoundoff(t *testing.T) {
	// 100 * 0.16 lands a hair above 16; the sample at exactly 0.16 must not
	// be dropped by the ceil
	lo, _, err := extract.Window(0.16, 0.18, 0, 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if lo != 16 {
		t.Errorf("expected the window to open at sample 16, got %d", lo)
	}
}

func TestWindowEmpty(t *testing.T) {
	_, _, err := extract.Window(10, 11, 0, 1000, 100)
	if err == nil {
		t.Error("expected an error for a window past the end of the data")
	}
}

func TestMeasurementValues(t *testing.T) {
	wf := rampWaveform(100, 1000)
	s, err := extract.Measurement(wf, shot.MeasurementRequest{
		Connection: "ai0",
		Label:      "m",
		Start:      0.010,
		End:        0.012,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Values) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(s.Values))
	}
	for i, v := range s.Values {
		if v != float32(10+i) {
			t.Errorf("sample %d: expected %d, got %v", i, 10+i, v)
		}
	}
	if s.Times[0] != 0.010 {
		t.Errorf("expected the first timestamp at 0.010, got %v", s.Times[0])
	}
}

func TestMeasurementShiftedByWaits(t *testing.T) {
	wf := rampWaveform(100, 100)
	outcomes := []shot.PauseOutcome{{Label: "w", Time: 0.05, Duration: 0.1}}
	// nominal window [0.06, 0.08] begins after the wait, so it shifts to
	// [0.16, 0.18]
	s, err := extract.Measurement(wf, shot.MeasurementRequest{
		Connection: "ai0",
		Label:      "m",
		Start:      0.06,
		End:        0.08,
	}, outcomes)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Values) == 0 || s.Values[0] != 16 {
		t.Fatalf("expected the window to open at sample 16, got %v", s.Values)
	}
}

func TestMeasurementWaitAtWindowStartDoesNotShift(t *testing.T) {
	wf := rampWaveform(100, 100)
	outcomes := []shot.PauseOutcome{{Label: "w", Time: 0.05, Duration: 0.1}}
	// the wait begins exactly at the window start; only waits strictly
	// before a boundary move it, so the window still opens at 0.05
	s, err := extract.Measurement(wf, shot.MeasurementRequest{
		Connection: "ai0",
		Label:      "m",
		Start:      0.05,
		End:        0.07,
	}, outcomes)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Values) == 0 || s.Values[0] != 5 {
		t.Fatalf("expected the window to open at sample 5, got %v", s.Values)
	}
}

func TestMeasurementUnknownConnection(t *testing.T) {
	wf := rampWaveform(10, 1000)
	_, err := extract.Measurement(wf, shot.MeasurementRequest{Connection: "ai9", Label: "m"}, nil)
	if err == nil {
		t.Error("expected an error for an unknown connection")
	}
}

func TestMeasurementsIsolateFailures(t *testing.T) {
	wf := rampWaveform(100, 1000)
	reqs := []shot.MeasurementRequest{
		{Connection: "ai0", Label: "good", Start: 0, End: 0.01},
		{Connection: "ai0", Label: "bad", Start: 5, End: 6},
		{Connection: "ai1", Label: "also-good", Start: 0.02, End: 0.03},
	}
	series, errs := extract.Measurements(wf, reqs, nil)
	if len(series) != 2 {
		t.Fatalf("expected the 2 valid windows to extract, got %d", len(series))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	var re extract.RangeError
	if !errors.As(errs[0], &re) {
		t.Fatalf("expected a RangeError, got %v", errs[0])
	}
	if re.Label != "bad" {
		t.Errorf("expected the error to name the failing measurement, got %q", re.Label)
	}
}
