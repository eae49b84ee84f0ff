package shot

import (
	"os"

	"github.com/astrogo/fitsio"
)

// ResultWriter receives the artifacts of one buffered run
type ResultWriter interface {
	// WriteTrace stores one measurement trace under its label
	WriteTrace(label string, times []float64, values []float32) error

	// WriteWaitOutcomes stores the resolved wait record set.  It is called
	// exactly once per run on the wait-monitoring device, with an empty
	// slice when no waits were scheduled
	WriteWaitOutcomes(outcomes []PauseOutcome) error

	// Close flushes and releases the underlying storage
	Close() error
}

// FITSWriter stores traces and wait outcomes as binary table extensions in
// one FITS file per shot
type FITSWriter struct {
	f    *os.File
	fits *fitsio.File
}

// NewFITSWriter creates the file at path and writes the primary HDU
func NewFITSWriter(path string) (*FITSWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	fits, err := fitsio.Create(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		fits.Close()
		f.Close()
		return nil, err
	}
	if err := fits.Write(phdu); err != nil {
		fits.Close()
		f.Close()
		return nil, err
	}
	return &FITSWriter{f: f, fits: fits}, nil
}

// WriteTrace appends a binary table named label with columns t and values
func (w *FITSWriter) WriteTrace(label string, times []float64, values []float32) error {
	tbl, err := fitsio.NewTable(label, []fitsio.Column{
		{Name: "t", Format: "D"},
		{Name: "values", Format: "E"},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()
	for i := range times {
		row := struct {
			T float64 `fits:"t"`
			V float32 `fits:"values"`
		}{times[i], values[i]}
		if err := tbl.Write(&row); err != nil {
			return err
		}
	}
	return w.fits.Write(tbl)
}

// WriteWaitOutcomes appends the WAITS binary table.  An empty outcome set
// still produces the table so downstream consumers can distinguish "no
// waits" from "not the monitoring device"
func (w *FITSWriter) WriteWaitOutcomes(outcomes []PauseOutcome) error {
	tbl, err := fitsio.NewTable("WAITS", []fitsio.Column{
		{Name: "label", Format: "80A"},
		{Name: "time", Format: "D"},
		{Name: "timeout", Format: "D"},
		{Name: "duration", Format: "D"},
		{Name: "timed_out", Format: "L"},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()
	for _, o := range outcomes {
		row := struct {
			Label    string  `fits:"label"`
			Time     float64 `fits:"time"`
			Timeout  float64 `fits:"timeout"`
			Duration float64 `fits:"duration"`
			TimedOut bool    `fits:"timed_out"`
		}{o.Label, o.Time, o.Timeout, o.Duration, o.TimedOut}
		if err := tbl.Write(&row); err != nil {
			return err
		}
	}
	return w.fits.Write(tbl)
}

// Close finalizes the FITS file
func (w *FITSWriter) Close() error {
	err := w.fits.Close()
	cerr := w.f.Close()
	if err != nil {
		return err
	}
	return cerr
}
