package waitmon_test

import (
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
	"github.jpl.nasa.gov/bdube/daqsync/waitmon"
)

func newMonitor() (*daq.Sim, *waitmon.Monitor, <-chan waitmon.Event) {
	sim := daq.NewSim()
	n := waitmon.NewNotifier()
	sub := n.Subscribe()
	return sim, waitmon.New(sim, sim, n), sub
}

func TestMonitorRejectsBadConfig(t *testing.T) {
	_, mon, _ := newMonitor()
	err := mon.Start(waitmon.Config{
		TimeoutEdge: daq.TriggerEdge(7),
		PulseWidth:  time.Millisecond,
	})
	if err == nil {
		t.Error("expected an error for an invalid trigger polarity")
	}
	err = mon.Start(waitmon.Config{
		TimeoutEdge: daq.RisingEdge,
		PulseWidth:  0,
	})
	if err == nil {
		t.Error("expected an error for a zero pulse width")
	}
}

func TestMonitorHappyPath(t *testing.T) {
	sim, mon, sub := newMonitor()
	err := mon.Start(waitmon.Config{
		Terminal:    "ctr0",
		TimeoutLine: "port0/line0",
		TimeoutEdge: daq.RisingEdge,
		PulseWidth:  time.Millisecond,
		Waits:       []shot.PauseEvent{{Label: "w0", Time: 0.01, Timeout: 0.5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sim.QueueEdge(0)    // start pulse, zeroes the clock
	sim.QueueEdge(0.02) // the wait's trailing edge
	sim.QueueEdge(0.01) // the resumption edge

	ev, err := waitmon.WaitFor(sub, waitmon.TopicWaitCompleted, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Label != "w0" {
		t.Errorf("expected completion of w0, got %q", ev.Label)
	}
	if _, err = waitmon.WaitFor(sub, waitmon.TopicAllWaitsFinished, time.Second); err != nil {
		t.Fatal(err)
	}
	if err = mon.Stop(false); err != nil {
		t.Fatal(err)
	}
	if mon.State() != waitmon.Finished {
		t.Errorf("expected Finished, got %v", mon.State())
	}
	hps := mon.HalfPeriods()
	if len(hps) != 2 {
		t.Fatalf("expected 2 recorded semi-periods, got %d", len(hps))
	}
}

func TestMonitorRetriggersOnTimeout(t *testing.T) {
	sim, mon, sub := newMonitor()
	// answer a rising pulse on the timeout line with the edges a resumed
	// clock would produce
	sim.OnLine = func(line string, level bool) {
		if line == "port0/line0" && level {
			go func() {
				time.Sleep(5 * time.Millisecond)
				sim.QueueEdge(0.5)
				sim.QueueEdge(0.01)
			}()
		}
	}
	err := mon.Start(waitmon.Config{
		Terminal:    "ctr0",
		TimeoutLine: "port0/line0",
		TimeoutEdge: daq.RisingEdge,
		PulseWidth:  time.Millisecond,
		Waits:       []shot.PauseEvent{{Label: "stall", Time: 0.01, Timeout: 0.05}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sim.QueueEdge(0) // start pulse; then nothing until the retrigger

	if _, err = waitmon.WaitFor(sub, waitmon.TopicAllWaitsFinished, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if err = mon.Stop(false); err != nil {
		t.Fatal(err)
	}
	if sim.Level("port0/line0") {
		t.Error("timeout line should be rearmed low after a rising retrigger")
	}
}

func TestMonitorFallingPolarityPreArms(t *testing.T) {
	sim, mon, _ := newMonitor()
	err := mon.Start(waitmon.Config{
		Terminal:    "ctr0",
		TimeoutLine: "port0/line0",
		TimeoutEdge: daq.FallingEdge,
		PulseWidth:  time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !sim.Level("port0/line0") {
		t.Error("a falling-polarity timeout line must idle high")
	}
	if err = mon.Stop(true); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorAbortIsPrompt(t *testing.T) {
	_, mon, _ := newMonitor()
	err := mon.Start(waitmon.Config{
		Terminal:    "ctr0",
		TimeoutLine: "port0/line0",
		TimeoutEdge: daq.RisingEdge,
		PulseWidth:  time.Millisecond,
		Waits:       []shot.PauseEvent{{Label: "w0", Time: 1, Timeout: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// no edges at all; the monitor is blocked waiting for the start pulse
	start := time.Now()
	if err = mon.Stop(true); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("abort took %v, should be within a poll interval", elapsed)
	}
	if mon.State() != waitmon.Aborted {
		t.Errorf("expected Aborted, got %v", mon.State())
	}
}
