package shot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

const sampleYAML = `device: daq0
channels:
  - name: ai0
    kind: analog-in
    min: -10
    max: 10
rate: 20000
startDelay: 0.001
clockTerminal: PFI0
waits:
  - label: mot-load
    time: 0.25
    timeout: 1
  - label: imaging
    time: 0.75
    timeout: 0.5
measurements:
  - connection: ai0
    label: pd-trace
    start: 0.1
    end: 0.2
waitMonitor:
  acquisitionDevice: daq0
  acquisitionConnection: ctr0
  timeoutDevice: daq0
  timeoutConnection: port0/line0
  triggerEdge: falling
`

func writeShot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	d, err := shot.Load(writeShot(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if d.Device != "daq0" {
		t.Errorf("expected device daq0, got %q", d.Device)
	}
	if d.Rate != 20000 {
		t.Errorf("expected rate 20000, got %v", d.Rate)
	}
	if len(d.Waits) != 2 || d.Waits[1].Label != "imaging" {
		t.Errorf("waits parsed incorrectly: %+v", d.Waits)
	}
	edge, err := d.TimeoutEdge()
	if err != nil {
		t.Fatal(err)
	}
	if edge != daq.FallingEdge {
		t.Errorf("expected a falling retrigger edge, got %v", edge)
	}
	chans, err := d.InputChannels()
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 1 || chans[0].Kind != daq.AnalogIn {
		t.Errorf("channels converted incorrectly: %+v", chans)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := shot.Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*shot.Description)
	}{
		{"zero rate with channels", func(d *shot.Description) { d.Rate = 0 }},
		{"unknown channel kind", func(d *shot.Description) { d.Channels[0].Kind = "astral" }},
		{"non-increasing waits", func(d *shot.Description) { d.Waits[1].Time = d.Waits[0].Time }},
		{"inverted measurement", func(d *shot.Description) { d.Measurements[0].End = 0.05 }},
		{"unknown trigger edge", func(d *shot.Description) { d.WaitMonitor.TriggerEdge = "sideways" }},
	}
	for _, c := range cases {
		d, err := shot.Load(writeShot(t, sampleYAML))
		if err != nil {
			t.Fatal(err)
		}
		c.mutate(d)
		if err := d.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", c.name)
		}
	}
}

func TestTimeoutEdgeDefaultsToRising(t *testing.T) {
	d := shot.Description{}
	edge, err := d.TimeoutEdge()
	if err != nil {
		t.Fatal(err)
	}
	if edge != daq.RisingEdge {
		t.Errorf("expected rising, got %v", edge)
	}
}

func TestIsWaitMonitorDevice(t *testing.T) {
	d, err := shot.Load(writeShot(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	is, err := d.IsWaitMonitorDevice("daq0")
	if err != nil || !is {
		t.Errorf("daq0 holds both roles, expected true, got %v %v", is, err)
	}
	is, err = d.IsWaitMonitorDevice("daq1")
	if err != nil || is {
		t.Errorf("daq1 holds neither role, expected false, got %v %v", is, err)
	}
	d.WaitMonitor.TimeoutDevice = "daq1"
	if _, err = d.IsWaitMonitorDevice("daq0"); err == nil {
		t.Error("expected an error when the roles are split across devices")
	}
	d.WaitMonitor.TimeoutDevice = "daq0"
	d.Waits = nil
	is, err = d.IsWaitMonitorDevice("daq0")
	if err != nil || !is {
		t.Errorf("designation is independent of the wait count, expected true, got %v %v", is, err)
	}
	d.WaitMonitor = shot.WaitMonitorSetup{}
	is, err = d.IsWaitMonitorDevice("daq0")
	if err != nil || is {
		t.Errorf("no waitMonitor stanza means no monitor, expected false, got %v %v", is, err)
	}
}
