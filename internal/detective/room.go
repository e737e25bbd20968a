package detective

import "time"

// RoomState is the room lifecycle label.
type RoomState string

const (
	RoomPending  RoomState = "pending"
	RoomRunning  RoomState = "running"
	RoomPaused   RoomState = "paused"
	RoomFinished RoomState = "finished"
)

func (s RoomState) Valid() bool {
	switch s {
	case RoomPending, RoomRunning, RoomPaused, RoomFinished:
		return true
	}
	return false
}

// Transition names an admin-invoked lifecycle operation.
type Transition string

const (
	TransitionStart  Transition = "start"
	TransitionPause  Transition = "pause"
	TransitionResume Transition = "resume"
	TransitionStop   Transition = "stop"
)

// Apply returns the room after t is applied at now. The input is not
// modified. An illegal transition returns a state error.
//
// Pause does not move the deadline: end_time keeps counting while paused.
func (t Transition) Apply(r Room, now time.Time) (Room, error) {
	now = now.UTC()
	switch t {
	case TransitionStart:
		if r.State != RoomPending {
			return r, Statef("cannot start a %s room", r.State)
		}
		end := now.Add(time.Duration(r.DurationSeconds) * time.Second)
		r.State = RoomRunning
		r.StartTime = &now
		r.EndTime = &end
	case TransitionPause:
		if r.State != RoomRunning {
			return r, Statef("cannot pause a %s room", r.State)
		}
		r.State = RoomPaused
	case TransitionResume:
		if r.State != RoomPaused {
			return r, Statef("cannot resume a %s room", r.State)
		}
		r.State = RoomRunning
	case TransitionStop:
		if r.State != RoomRunning && r.State != RoomPaused {
			return r, Statef("cannot stop a %s room", r.State)
		}
		r.State = RoomFinished
		r.EndTime = &now
	default:
		return r, Validationf("unknown transition %q", t)
	}
	return r, nil
}

// Expired reports whether a clocked room has reached its deadline at now
// and should be observed as finished.
func (r Room) Expired(now time.Time) bool {
	if r.State != RoomRunning && r.State != RoomPaused {
		return false
	}
	if r.EndTime == nil {
		return false
	}
	return !now.Before(*r.EndTime)
}

// RemainingSeconds is nil for pending rooms, 0 for finished ones and the
// ceiling of the time left until end_time otherwise.
func (r Room) RemainingSeconds(now time.Time) *int {
	var n int
	switch r.State {
	case RoomPending:
		return nil
	case RoomFinished:
		return &n
	}
	if r.EndTime == nil {
		return &n
	}
	left := r.EndTime.Sub(now)
	if left <= 0 {
		return &n
	}
	n = int((left + time.Second - 1) / time.Second)
	return &n
}
