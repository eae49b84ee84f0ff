package daq_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"

	ghdaq "github.jpl.nasa.gov/bdube/daqsync/generichttp/daq"
)

type fakeController struct {
	mode        string
	accumulated int
	manualRate  float64
	armedWith   string
	aborted     bool
	finished    bool
}

func (f *fakeController) Mode() string     { return f.mode }
func (f *fakeController) Accumulated() int { return f.accumulated }
func (f *fakeController) TransitionToBuffered(path string) error {
	f.armedWith = path
	return nil
}
func (f *fakeController) TransitionToManual(abort bool) error {
	f.finished = true
	f.aborted = abort
	return nil
}
func (f *fakeController) MonitorState() string   { return "finished" }
func (f *fakeController) HalfPeriods() []float64 { return []float64{0.1, 0.05} }
func (f *fakeController) ManualRate() float64    { return f.manualRate }
func (f *fakeController) SetManualRate(hz float64) error {
	f.manualRate = hz
	return nil
}
func (f *fakeController) Armed() bool { return f.armedWith != "" }

func newServer(f *fakeController) *httptest.Server {
	r := chi.NewRouter()
	ghdaq.NewHTTPDAQ(f).RT().Bind(r)
	return httptest.NewServer(r)
}

func TestGetMode(t *testing.T) {
	f := &fakeController{mode: "manual"}
	srv := newServer(f)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/mode")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload struct {
		Str string `json:"str"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Str != "manual" {
		t.Errorf("expected manual, got %q", payload.Str)
	}
}

func TestGetAccumulated(t *testing.T) {
	f := &fakeController{accumulated: 1234}
	srv := newServer(f)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/accumulated")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload struct {
		Int int `json:"int"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Int != 1234 {
		t.Errorf("expected 1234, got %d", payload.Int)
	}
}

func TestTransitionToBuffered(t *testing.T) {
	f := &fakeController{}
	srv := newServer(f)
	defer srv.Close()
	body := bytes.NewBufferString(`{"str": "/data/shot.yml"}`)
	resp, err := http.Post(srv.URL+"/transition-to-buffered", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if f.armedWith != "/data/shot.yml" {
		t.Errorf("shot path lost in transit: %q", f.armedWith)
	}
}

func TestTransitionToManual(t *testing.T) {
	f := &fakeController{}
	srv := newServer(f)
	defer srv.Close()
	body := bytes.NewBufferString(`{"bool": false}`)
	resp, err := http.Post(srv.URL+"/transition-to-manual", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !f.finished || f.aborted {
		t.Errorf("expected a non-abort finish, got finished=%v aborted=%v", f.finished, f.aborted)
	}
}

func TestAbort(t *testing.T) {
	f := &fakeController{}
	srv := newServer(f)
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/abort", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !f.finished || !f.aborted {
		t.Errorf("expected an aborting finish, got finished=%v aborted=%v", f.finished, f.aborted)
	}
}

func TestManualRateRoundTrip(t *testing.T) {
	f := &fakeController{manualRate: 1000}
	srv := newServer(f)
	defer srv.Close()
	body := bytes.NewBufferString(`{"f64": 2500}`)
	resp, err := http.Post(srv.URL+"/manual-rate", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp, err = http.Get(srv.URL + "/manual-rate")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload struct {
		F64 float64 `json:"f64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.F64 != 2500 {
		t.Errorf("expected the new rate to read back as 2500, got %v", payload.F64)
	}
}

func TestGetArmed(t *testing.T) {
	f := &fakeController{armedWith: "/data/shot.yml"}
	srv := newServer(f)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/armed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload struct {
		Bool bool `json:"bool"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Bool {
		t.Error("expected armed to report true")
	}
}

func TestHalfPeriods(t *testing.T) {
	f := &fakeController{}
	srv := newServer(f)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/wait-monitor/half-periods")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var hps []float64
	if err := json.NewDecoder(resp.Body).Decode(&hps); err != nil {
		t.Fatal(err)
	}
	if len(hps) != 2 || hps[0] != 0.1 {
		t.Errorf("half periods lost in transit: %v", hps)
	}
}
