// Command shotsim runs one simulated shot end to end with no hardware
// attached.  It exists to demonstrate the moving parts working together and
// to serve as a smoke test of a deployment.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/daqsync/acquire"
	"github.jpl.nasa.gov/bdube/daqsync/daq"
	"github.jpl.nasa.gov/bdube/daqsync/shot"
	"github.jpl.nasa.gov/bdube/daqsync/shotrun"
	"github.jpl.nasa.gov/bdube/daqsync/waitmon"
)

const shotYAML = `device: sim0
channels:
  - name: ai0
    kind: analog-in
    min: -10
    max: 10
  - name: ai1
    kind: analog-in
    min: -10
    max: 10
rate: 10000
startDelay: 0
clockTerminal: clock0
waits:
  - label: wait-a
    time: 0.05
    timeout: 0.1
  - label: wait-b
    time: 0.12
    timeout: 0.1
measurements:
  - connection: ai0
    label: before-waits
    start: 0
    end: 0.04
  - connection: ai1
    label: after-waits
    start: 0.13
    end: 0.2
waitMonitor:
  acquisitionDevice: sim0
  acquisitionConnection: ctr0
  timeoutDevice: sim0
  timeoutConnection: port0/line0
  triggerEdge: rising
`

func main() {
	spin, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " shot",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if err != nil {
		log.Fatal(err)
	}

	dir, err := os.MkdirTemp("", "shotsim")
	if err != nil {
		log.Fatal(err)
	}
	shotPath := filepath.Join(dir, "shot.yml")
	if err := os.WriteFile(shotPath, []byte(shotYAML), 0644); err != nil {
		log.Fatal(err)
	}

	sim := daq.NewSim()
	// a retrigger pulse on the timeout line is answered with the pair of
	// edges a resumed clock would produce
	sim.OnLine = func(line string, level bool) {
		if line == "port0/line0" && level {
			go func() {
				time.Sleep(5 * time.Millisecond)
				sim.QueueEdge(0.2)
				sim.QueueEdge(0.01)
			}()
		}
	}

	engine := acquire.New(sim, []daq.Channel{{Name: "ai0", Kind: daq.AnalogIn, VMin: -10, VMax: 10}}, 1000)
	if err := engine.Init(); err != nil {
		log.Fatal(err)
	}
	defer engine.Shutdown()

	notifier := waitmon.NewNotifier()
	ctl := &shotrun.Controller{
		DeviceName: "sim0",
		Engine:     engine,
		Monitor:    waitmon.New(sim, sim, notifier),
		Notifier:   notifier,
		NewWriter: func(string) (shot.ResultWriter, error) {
			return shot.NewFITSWriter(filepath.Join(dir, "shot.fits"))
		},
	}

	spin.Start()
	spin.Message("arming")
	if err := ctl.TransitionToBuffered(shotPath); err != nil {
		spin.StopFail()
		log.Fatal(err)
	}

	// play the experiment: release the clock, then feed the monitor the
	// edge sequence of a run where wait-a ends on time and wait-b stalls
	// until the retrigger
	spin.Message("running")
	sim.FireTrigger("clock0")
	sim.QueueEdge(0)
	go func() {
		time.Sleep(50 * time.Millisecond)
		sim.QueueEdge(0.05)
		time.Sleep(10 * time.Millisecond)
		sim.QueueEdge(0.01)
		// nothing for wait-b; the monitor will time out and retrigger
	}()

	// let samples accumulate
	time.Sleep(500 * time.Millisecond)

	spin.Message("finalizing")
	if err := ctl.TransitionToManual(false); err != nil {
		spin.StopFail()
		log.Fatal(err)
	}
	spin.StopMessage(fmt.Sprintf("results in %s", filepath.Join(dir, "shot.fits")))
	spin.Stop()

	fmt.Println("mode:", ctl.Mode())
	fmt.Println("monitor:", ctl.MonitorState())
	for i, hp := range ctl.HalfPeriods() {
		fmt.Printf("half period %d: %.3f s\n", i, hp)
	}
}
