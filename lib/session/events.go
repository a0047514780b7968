package session

import "time"

type State int

const (
	Idle State = iota
	Preparing
	Countdown
	Capturing
	Retrying // sub-state of Capturing while backing off a busy device
	Transferring
	SlotFilled
	Waiting // between photos with the device still busy; operator may retry
	ReviewPending
	Aborted
	Failed
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Countdown:
		return "countdown"
	case Capturing:
		return "capturing"
	case Retrying:
		return "retrying"
	case Transferring:
		return "transferring"
	case SlotFilled:
		return "slot-filled"
	case Waiting:
		return "waiting"
	case ReviewPending:
		return "review"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

type ReviewMode int

const (
	ReviewRetakeFilter ReviewMode = iota
	ReviewFilterOnly
	ReviewSilentFilter
	ReviewDirect
)

func (m ReviewMode) String() string {
	switch m {
	case ReviewRetakeFilter:
		return "retake+filter"
	case ReviewFilterOnly:
		return "filter-only"
	case ReviewSilentFilter:
		return "silent-filter"
	case ReviewDirect:
		return "direct"
	}
	return "unknown"
}

type StateEvent struct {
	State State
}

type TickEvent struct {
	Remaining int // whole seconds until the shutter
	Slot      int
}

type SlotEvent struct {
	Index  int
	Path   string
	Retake bool
}

type StatusEvent struct {
	Message string
}

type FrameEvent struct {
	Data []byte
}

type ReviewEvent struct {
	Mode   ReviewMode
	Window time.Duration
}

type ComposedEvent struct {
	Path string
	Err  error
}

// Event is one observable session occurrence; exactly one field is set.
type Event struct {
	State    *StateEvent
	Tick     *TickEvent
	Slot     *SlotEvent
	Status   *StatusEvent
	Frame    *FrameEvent
	Review   *ReviewEvent
	Composed *ComposedEvent
}
