package sim

import "fmt"

type EventType int

const (
	EventStarted EventType = iota
	EventStepTaken
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "STARTED"
	case EventStepTaken:
		return "STEP_TAKEN"
	case EventFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("EVENT(%d)", int(t))
	}
}

// Event is a run lifecycle notification. Progress is the fraction of the
// run completed before the step that produced the event; Time is the
// simulation time the event refers to.
type Event struct {
	Type     EventType
	Progress float64
	Time     float64
}

type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
