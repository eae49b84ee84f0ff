package waitmon

import (
	"fmt"

	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

// EdgeCountError is generated when the observed semi-periods cannot account
// for every scheduled wait, e.g. because the hardware missed or merged an
// edge.  The durations it would imply are garbage, so none are produced
type EdgeCountError struct {
	// Periods is how many inter-resumption periods were observed
	Periods int

	// Waits is how many were required by the schedule
	Waits int
}

func (e EdgeCountError) Error() string {
	return fmt.Sprintf("observed %d inter-resumption periods but the schedule has %d waits; an edge was missed or merged", e.Periods, e.Waits)
}

// Resolve converts the ordered semi-period sequence collected by the
// monitor plus the wait schedule into per-wait durations and timeout flags.
//
// The absolute time of each edge is the running sum of the semi-periods,
// with the unmeasured rising edge at t=0 prepended.  Every second edge is a
// resumption edge; successive differences between resumption edges are the
// observed inter-wait periods.  Subtracting the scheduled inter-wait
// periods, derived the same way from the wait start times, leaves each
// wait's actual duration.  When the device records more periods than there
// are waits (the start pulse contributes a leading one), the most recent
// periods are the ones aligned against the schedule.
//
// Zero waits resolve to an empty, non-nil outcome list
func Resolve(halfPeriods []float64, waits []shot.PauseEvent) ([]shot.PauseOutcome, error) {
	outcomes := make([]shot.PauseOutcome, 0, len(waits))
	if len(waits) == 0 {
		return outcomes, nil
	}

	edges := make([]float64, len(halfPeriods)+1)
	for i, hp := range halfPeriods {
		edges[i+1] = edges[i] + hp
	}
	// even indices are the resumption edges
	var resume []float64
	for i := 0; i < len(edges); i += 2 {
		resume = append(resume, edges[i])
	}
	periods := make([]float64, len(resume)-1)
	for i := range periods {
		periods[i] = resume[i+1] - resume[i]
	}
	if len(periods) < len(waits) {
		return nil, EdgeCountError{Periods: len(periods), Waits: len(waits)}
	}

	offset := len(periods) - len(waits)
	prev := 0.0
	for i, w := range waits {
		scheduled := w.Time - prev
		prev = w.Time
		d := periods[offset+i] - scheduled
		outcomes = append(outcomes, shot.PauseOutcome{
			Label:    w.Label,
			Time:     w.Time,
			Timeout:  w.Timeout,
			Duration: d,
			TimedOut: d > w.Timeout,
		})
	}
	return outcomes, nil
}
