// Package daq provides a generic HTTP interface to buffered acquisition devices
//
// This is not the last word in speed, due to HTTP having reasonable latency in
// most client languages, but it is the last word in ease of use.
package daq

import (
	"encoding/json"
	"net/http"

	"github.jpl.nasa.gov/bdube/daqsync/generichttp"
)

// AcquisitionController is the control surface of a buffered acquisition device
type AcquisitionController interface {
	// Mode returns the operating mode, one of idle, manual, buffered
	Mode() string

	// Accumulated returns the per-channel sample count of the current
	// buffered run
	Accumulated() int

	// TransitionToBuffered arms the device for a shot described by the file
	// at the given path
	TransitionToBuffered(string) error

	// TransitionToManual ends the shot; abort discards accumulated data
	TransitionToManual(bool) error
}

// HTTPAcquisition adds routes for acquisition control to a table
func HTTPAcquisition(iface AcquisitionController, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/mode"}] = GetMode(iface)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/accumulated"}] = GetAccumulated(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/transition-to-buffered"}] = TransitionToBuffered(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/transition-to-manual"}] = TransitionToManual(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/abort"}] = Abort(iface)
}

// GetMode returns an HTTP handlerfunc that reports the operating mode
func GetMode(c AcquisitionController) http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		return c.Mode(), nil
	})
}

// GetAccumulated returns an HTTP handlerfunc that reports the accumulated
// sample count
func GetAccumulated(c AcquisitionController) http.HandlerFunc {
	return generichttp.GetInt(func() (int, error) {
		return c.Accumulated(), nil
	})
}

// TransitionToBuffered returns an HTTP handlerfunc that arms a shot from
// a json input of {'str': path}
func TransitionToBuffered(c AcquisitionController) http.HandlerFunc {
	return generichttp.SetString(c.TransitionToBuffered)
}

// TransitionToManual returns an HTTP handlerfunc that ends a shot from
// a json input of {'bool': abort}
func TransitionToManual(c AcquisitionController) http.HandlerFunc {
	return generichttp.SetBool(c.TransitionToManual)
}

// Abort returns an HTTP handlerfunc that ends a shot discarding its data
func Abort(c AcquisitionController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := c.TransitionToManual(true)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ManualSampler is a device whose free-running sample rate between shots can
// be inspected and changed
type ManualSampler interface {
	// ManualRate returns the manual-mode sample rate in Hz
	ManualRate() float64

	// SetManualRate changes the manual-mode sample rate
	SetManualRate(float64) error
}

// HTTPManualSampler adds routes for the manual sample rate to a table
func HTTPManualSampler(iface ManualSampler, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/manual-rate"}] = GetManualRate(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/manual-rate"}] = SetManualRate(iface)
}

// GetManualRate returns an HTTP handlerfunc that reports the manual-mode
// sample rate as json {'f64': rate}
func GetManualRate(s ManualSampler) http.HandlerFunc {
	return generichttp.GetFloat(func() (float64, error) {
		return s.ManualRate(), nil
	})
}

// SetManualRate returns an HTTP handlerfunc that changes the manual-mode
// sample rate from a json input of {'f64': rate}
func SetManualRate(s ManualSampler) http.HandlerFunc {
	return generichttp.SetFloat(s.SetManualRate)
}

// ShotHolder is a device which knows whether a shot is currently armed on it
type ShotHolder interface {
	Armed() bool
}

// HTTPShotHolder adds the armed route to a table
func HTTPShotHolder(iface ShotHolder, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/armed"}] = GetArmed(iface)
}

// GetArmed returns an HTTP handlerfunc that reports whether a shot is armed
// as json {'bool': armed}
func GetArmed(h ShotHolder) http.HandlerFunc {
	return generichttp.GetBool(func() (bool, error) {
		return h.Armed(), nil
	})
}

// WaitReporter is a device which hosts a wait monitor and can report on it
type WaitReporter interface {
	// MonitorState returns the wait monitor's phase
	MonitorState() string

	// HalfPeriods returns the semi-periods measured so far, in seconds
	HalfPeriods() []float64
}

// HTTPWaitReporter adds routes for wait monitor introspection to a table
func HTTPWaitReporter(iface WaitReporter, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/wait-monitor/state"}] = GetMonitorState(iface)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/wait-monitor/half-periods"}] = GetHalfPeriods(iface)
}

// GetMonitorState returns an HTTP handlerfunc that reports the wait
// monitor's phase
func GetMonitorState(rep WaitReporter) http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		return rep.MonitorState(), nil
	})
}

// GetHalfPeriods returns an HTTP handlerfunc that reports the measured
// semi-periods as a json array
func GetHalfPeriods(rep WaitReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(rep.HalfPeriods())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// HTTPDAQ is a type that allows setting up an acquisition device satisfying
// any combination of the interfaces in this package to an HTTP interface
type HTTPDAQ struct {
	c AcquisitionController

	RouteTable generichttp.RouteTable
}

// NewHTTPDAQ sets up an HTTP interface to an acquisition device
func NewHTTPDAQ(c AcquisitionController) HTTPDAQ {
	w := HTTPDAQ{c: c}
	rt := generichttp.RouteTable{}
	HTTPAcquisition(c, rt)
	if ms, ok := (c).(ManualSampler); ok {
		HTTPManualSampler(ms, rt)
	}
	if sh, ok := (c).(ShotHolder); ok {
		HTTPShotHolder(sh, rt)
	}
	if rep, ok := (c).(WaitReporter); ok {
		HTTPWaitReporter(rep, rt)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPDAQ) RT() generichttp.RouteTable {
	return h.RouteTable
}
