package waitmon

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/daqsync/shot"
)

// Notification topics published over the monitor's lifetime.  In the larger
// system these cross device boundaries; other devices block their own
// finalization on TopicDurationsResolved
const (
	// TopicWaitCompleted is published once per wait, in schedule order,
	// with the wait's label
	TopicWaitCompleted = "wait completed"

	// TopicAllWaitsFinished is published after the last wait's resumption
	// edge is observed
	TopicAllWaitsFinished = "all waits finished"

	// TopicDurationsResolved is published after the wait outcome record set
	// is written; it carries the outcomes so consumers can shift their
	// measurement windows
	TopicDurationsResolved = "wait durations resolved"
)

// Event is one published notification
type Event struct {
	Topic string

	// Label is the wait label for TopicWaitCompleted
	Label string

	// Outcomes is the resolved record set for TopicDurationsResolved
	Outcomes []shot.PauseOutcome
}

// Notifier is an in-process broadcast of Events to any number of
// subscribers
type Notifier struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewNotifier returns an empty Notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel receiving every event published after the
// call.  Subscribers that fall more than subBuffer events behind lose the
// oldest ones
func (n *Notifier) Subscribe() <-chan Event {
	ch := make(chan Event, subBuffer)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

const subBuffer = 16

// Post publishes ev to all subscribers without blocking the caller
func (n *Notifier) Post(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("notifier: dropping %q, subscriber is %d events behind", ev.Topic, subBuffer)
		}
	}
}

// WaitFor consumes events from ch until one with the given topic arrives,
// and returns it.  Other topics received in the meantime are discarded
func WaitFor(ch <-chan Event, topic string, timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev.Topic == topic {
				return ev, nil
			}
		case <-timer.C:
			return Event{}, fmt.Errorf("timed out after %v waiting for %q", timeout, topic)
		}
	}
}
