/*Package daq provides the data model and capability interfaces for clocked
data acquisition devices.

This package does not speak to any vendor driver itself.  It models the
capabilities the rest of the repository needs from one: continuously sampled
analog input with a chunk callback, semi-period edge counting, and single
digital line writes.  Concrete implementations wrap a vendor binding; the Sim
type in this package is a software implementation used for tests and for
operating the service without hardware attached.

Basic usage is as follows:

 dev := daq.NewSim()
 task, err := dev.StartInput(daq.InputConfig{
 	Channels:        []daq.Channel{{Name: "ai0", Kind: daq.AnalogIn, VMin: -10, VMax: 10}},
 	SampleRate:      1000,
 	SamplesPerChunk: 200,
 }, onChunk)
 if err != nil {
 	log.Fatal(err)
 }
 // ... onChunk fires from the device's execution context ...
 task.Stop()
 task.Close()
*/
package daq

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamActive is generated when a task is started while another is
	// still running on the same resource
	ErrStreamActive = errors.New("acquisition stream already active")

	// ErrNoStream is generated when a stop is issued with nothing running
	ErrNoStream = errors.New("no acquisition stream is active")

	// ErrAborted is generated when a blocking wait observes the abort flag.
	// It is expected during user-initiated aborts and should not be treated
	// as a hardware fault
	ErrAborted = errors.New("aborted")

	// ErrEdgeTimeout is generated when an edge read elapses with no sample
	// available.  Bounded poll loops treat it as a cue to re-check their
	// cancellation flag and deadline
	ErrEdgeTimeout = errors.New("edge not yet available")

	// ErrSampleOverflow is generated when the hardware sample total
	// disagrees with the accumulated buffer, indicating sample loss.
	// Consumers log it and resume manual sampling anyway; a stale stream is
	// better than no stream
	ErrSampleOverflow = errors.New("sample loss: accumulated samples disagree with hardware total")

	// ErrWrongMode is generated when a state transition is requested from a
	// state that does not permit it
	ErrWrongMode = errors.New("operation not allowed in the current mode")

	// ErrNoChannels is generated when a task is configured with an empty
	// channel list
	ErrNoChannels = errors.New("task requires at least one channel")

	// ErrBadSampleRate is generated when a task is configured with a
	// nonpositive sample rate
	ErrBadSampleRate = errors.New("sample rate must be positive")
)

// ChannelKind enumerates the kinds of hardware line a Channel may address
type ChannelKind int

const (
	// AnalogIn is an analog input (measurement) channel
	AnalogIn ChannelKind = iota

	// AnalogOut is an analog output channel
	AnalogOut

	// DigitalIn is a digital input line or port
	DigitalIn

	// DigitalOut is a digital output line or port
	DigitalOut
)

// ValidateChannelKind ensures that a channel kind is valid
// s is a member of {analog-in, analog-out, digital-in, digital-out}
func ValidateChannelKind(s string) (ChannelKind, error) {
	switch s {
	case "analog-in":
		return AnalogIn, nil
	case "analog-out":
		return AnalogOut, nil
	case "digital-in":
		return DigitalIn, nil
	case "digital-out":
		return DigitalOut, nil
	default:
		return -1, fmt.Errorf("channel kind must be a member of {analog-in, analog-out, digital-in, digital-out}, got %q", s)
	}
}

// FormatChannelKind converts a channel kind to its string representation,
// the inverse of ValidateChannelKind
func FormatChannelKind(k ChannelKind) string {
	switch k {
	case AnalogIn:
		return "analog-in"
	case AnalogOut:
		return "analog-out"
	case DigitalIn:
		return "digital-in"
	case DigitalOut:
		return "digital-out"
	default:
		return ""
	}
}

// TriggerEdge is the polarity of a digital edge
type TriggerEdge int

const (
	// RisingEdge is a low to high transition
	RisingEdge TriggerEdge = iota

	// FallingEdge is a high to low transition
	FallingEdge
)

// ValidateTriggerEdge ensures that a trigger edge is valid
// s is a member of {rising, falling}
func ValidateTriggerEdge(s string) (TriggerEdge, error) {
	switch s {
	case "rising":
		return RisingEdge, nil
	case "falling":
		return FallingEdge, nil
	default:
		return -1, fmt.Errorf("trigger edge must be a member of {rising, falling}, got %q", s)
	}
}

// FormatTriggerEdge converts a trigger edge to a string representation,
// which is a member of {rising, falling}
func FormatTriggerEdge(e TriggerEdge) string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return ""
	}
}

// Channel identifies one line of a device.  Channels are immutable once the
// device is configured
type Channel struct {
	// Name is the hardware address of the line, e.g. "ai0" or "port0"
	Name string

	// Kind is what sort of line this is
	Kind ChannelKind

	// VMin is the lower bound of the voltage range, analog channels only
	VMin float64

	// VMax is the upper bound of the voltage range, analog channels only
	VMax float64

	// Lines is the width of a digital port, digital channels only
	Lines int
}
